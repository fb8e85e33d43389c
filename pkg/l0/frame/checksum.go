package frame

// Checksum accumulates the Fletcher sums over a frame.
type Checksum struct {
	a, b byte
}

// Push adds one byte.
func (c *Checksum) Push(x byte) {
	c.a += x
	c.b += c.a
}

// Write implements io.Writer.
func (c *Checksum) Write(p []byte) (int, error) {
	for _, x := range p {
		c.Push(x)
	}
	return len(p), nil
}

// Sum returns the byte carried at the end of a frame.
func (c Checksum) Sum() byte {
	return c.b
}

// Reset clears both sums.
func (c *Checksum) Reset() {
	c.a, c.b = 0, 0
}
