// Package msgs defines the envelope published for every message taken off
// the ingestion queue.
//
// The envelope is a google.protobuf.Struct so consumers can decode it with
// any protobuf runtime and without generated code.
//
// Producer: relay
// Consumer: monitors, loggers, command execution layers
package msgs
