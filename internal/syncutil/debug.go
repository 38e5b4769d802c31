package syncutil

import (
	"os"
	"strings"
	"time"

	"github.com/calmh/logger"
)

var (
	debug     = strings.Contains(os.Getenv("LCPTRACE"), "sync") || os.Getenv("LCPTRACE") == "all"
	l         = logger.DefaultLogger
	threshold = time.Second
)
