// Package protocol implements the fixed-size packet protocol spoken by the
// focus stacking controller
package protocol

// ProtocolVersion represents the stackctl protocol revision
const ProtocolVersion = "0.1.0"

// Packet layout constants
const (
	DefaultPacketSize = 64   // Firmware packet size (USB full-speed endpoint)
	MaxPacketSize     = 1024 // Upper bound accepted by NewCodec
	TagSize           = 1    // Type tag occupies the first byte
	TagPosition       = 0
	PayloadPosition   = TagPosition + TagSize
)
