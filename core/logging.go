package core

import log "github.com/sirupsen/logrus"

// globalLogger is used by every component in this package so callers can
// redirect wallet-core logging without threading a logger through every
// constructor, matching the teacher's package-level logger convention.
var globalLogger = log.New()

// SetLogger overrides the package-level logger used by the wallet core.
func SetLogger(l *log.Logger) { globalLogger = l }
