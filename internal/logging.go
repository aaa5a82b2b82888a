package internal

import (
	"log"
	"os"
)

// NewLogger returns a stdout logger prefixed with hubhook/<component>.
func NewLogger(component string) *log.Logger {
	prefix := "hubhook"
	if component != "" {
		prefix = prefix + "/" + component
	}
	return log.New(os.Stdout, prefix+" ", log.LstdFlags|log.Lmicroseconds)
}

// WithRequestID derives a logger whose lines carry request_id=<id>.
func WithRequestID(logger *log.Logger, requestID string) *log.Logger {
	if logger == nil {
		logger = log.Default()
	}
	if requestID == "" {
		return logger
	}
	return log.New(logger.Writer(), logger.Prefix()+"request_id="+requestID+" ", logger.Flags())
}
