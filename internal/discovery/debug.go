package discovery

import (
	"os"
	"strings"

	"github.com/calmh/logger"
)

var (
	debug = strings.Contains(os.Getenv("LCPTRACE"), "discovery") || os.Getenv("LCPTRACE") == "all"
	l     = logger.DefaultLogger
)
