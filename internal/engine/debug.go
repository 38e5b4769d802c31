package engine

import (
	"os"
	"strings"

	"github.com/calmh/logger"
)

var (
	debug = strings.Contains(os.Getenv("LCPTRACE"), "engine") || os.Getenv("LCPTRACE") == "all"
	l     = logger.DefaultLogger
)
