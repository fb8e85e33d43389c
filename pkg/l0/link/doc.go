// Package link drives bytes from a transport through the frame parser
// into the message queue.
package link

// The Loop is the only place where transport, parser and queue meet. It
// is cooperative: it never blocks on the transport, and when a poll comes
// back empty it hands control to a Yielder, which decides how the loop
// waits for more data.
