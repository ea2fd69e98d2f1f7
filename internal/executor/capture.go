package executor

import (
	"bytes"
	"io"
)

// CappedBuffer collects at most Limit bytes and silently drops the rest, so a
// chatty child cannot exhaust the server's memory. A Limit <= 0 means no cap.
type CappedBuffer struct {
	Limit     int
	buf       bytes.Buffer
	truncated bool
}

var _ io.Writer = (*CappedBuffer)(nil)

func (c *CappedBuffer) Write(p []byte) (int, error) {
	if c.Limit <= 0 {
		return c.buf.Write(p)
	}
	remaining := c.Limit - c.buf.Len()
	if remaining <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		c.truncated = true
		c.buf.Write(p[:remaining])
		return len(p), nil
	}
	return c.buf.Write(p)
}

// Truncated reports whether anything was dropped.
func (c *CappedBuffer) Truncated() bool {
	return c.truncated
}

func (c *CappedBuffer) String() string {
	return c.buf.String()
}
