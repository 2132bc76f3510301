package sniffer

import (
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"
)

// newNoOpHCLogger creates a no-op hclog.Logger to silence the browser entirely.
func newNoOpHCLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "browser",
		Level:  hclog.Off,
		Output: io.Discard,
	})
}

// newHCLogger creates an hclog.Logger for chromedp output.
func newHCLogger(w io.Writer, level hclog.Level) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "browser",
		Level:  level,
		Output: w,
	})
}

// printf adapts an hclog level method to the printf-style callbacks chromedp expects.
func printf(log func(msg string, args ...interface{})) func(string, ...interface{}) {
	return func(format string, args ...interface{}) {
		log(fmt.Sprintf(format, args...))
	}
}
