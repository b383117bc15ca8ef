package envexec

import (
	"bytes"
	"sync"
)

// collector keeps the first max bytes written to it and drops the rest.
// Write never fails so the process is never blocked on a full pipe.
type collector struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int64
	truncated bool
}

func newCollector(max Size) *collector {
	return &collector{max: int64(max)}
}

func (c *collector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(p)
	if remain := c.max - int64(c.buf.Len()); int64(n) > remain {
		c.truncated = true
		p = p[:max(remain, 0)]
	}
	c.buf.Write(p)
	return n, nil
}

func (c *collector) Bytes() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.buf.Bytes()), c.truncated
}
