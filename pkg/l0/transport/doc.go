// Package transport adapts byte streams (serial ports, sockets, files) to
// link.Transport.
//
// A Stream owns a reader goroutine which plays the role of the receive
// interrupt: it copies incoming bytes into a single-producer/single-consumer
// byte ring and signals Ready. Poll runs on the ingestion loop and drains the
// ring without blocking. The ring is the only state shared by the two sides.
package transport
