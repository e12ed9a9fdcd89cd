package logging

import (
	"log"
	"os"
)

var (
	disabled = false
	debug    = os.Getenv("PARLEY_DEBUG") != ""
	logger   = log.New(os.Stdout, "", log.LstdFlags)
)

// Disable turns off all logging
func Disable() {
	disabled = true
}

// Enable turns logging back on
func Enable() {
	disabled = false
}

// Infof logs a formatted info message
func Infof(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Warnf logs a formatted warning message
func Warnf(format string, v ...any) {
	if !disabled {
		logger.Printf("WARN "+format, v...)
	}
}

// Errorf logs a formatted error message
func Errorf(format string, v ...any) {
	if !disabled {
		logger.Printf("ERROR "+format, v...)
	}
}

// Debugf logs a formatted debug message, suppressed unless PARLEY_DEBUG is set
func Debugf(format string, v ...any) {
	if !disabled && debug {
		logger.Printf("DEBUG "+format, v...)
	}
}
