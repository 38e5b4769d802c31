package messaging

import (
	"os"
	"strings"

	"github.com/calmh/logger"
)

var (
	debug = strings.Contains(os.Getenv("LCPTRACE"), "messaging") || os.Getenv("LCPTRACE") == "all"
	l     = logger.DefaultLogger
)
