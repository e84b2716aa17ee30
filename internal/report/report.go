// Package report carries the human-readable progress lines of an
// automation run and the machine-readable NDJSON run log.
package report

import (
	"fmt"
	"io"
	"sync"
)

// Sink receives ordered, human-readable progress lines.
type Sink interface {
	Line(format string, args ...any)
}

// Console writes progress lines to a writer, one per call, in order.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Line(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format+"\n", args...)
}
