// Package cmds decodes the typed command set carried in frames.
//
// The opcode selects the command. Multi-byte fields are little-endian.
//
//	ElectrodeEnable  0  16 bytes, one bit per electrode, LSB first
//	BulkCapacitance  2  start, count (<= 64), count x uint16
//	Parameter        6  uint32 index, int32/float32 value, write flag
//
// Opcodes without a registered command decode to Raw.
package cmds
