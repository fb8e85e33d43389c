// Package frame provides the L0 command frame codec.
package frame

// Frames are sent from the host to the device over a USB virtual serial
// port. Each frame is
//
//	[Sync][Len][Opcode, Data...][Checksum]
//
// where Len counts the opcode and data bytes and Checksum is the second
// Fletcher sum over Len and the payload. There is no byte stuffing: a
// receiver that loses track simply hunts for the next Sync byte.
//
// Producer: L1 host
// Consumer: L0 device
