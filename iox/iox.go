// Package iox holds small I/O helpers shared by the capture, storage and
// adapter packages.
package iox

import "io"

// DiscardClose closes c and drops the error. For deferred closes of
// read-only streams where the error changes nothing:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc adapts c for t.Cleanup.
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// CountingWriter forwards to W and tallies bytes written.
type CountingWriter struct {
	W io.Writer
	N int64
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.W.Write(p)
	c.N += int64(n)
	return n, err
}
