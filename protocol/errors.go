package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKind     = errors.New("unknown message kind")
	ErrPacketLength    = errors.New("invalid packet length")
	ErrPayloadMismatch = errors.New("payload does not match message kind")
	ErrPayloadTooLarge = errors.New("payload exceeds packet capacity")
	ErrFieldRange      = errors.New("field value not representable")
)

// UnknownKindError reports a tag that has no registry entry
type UnknownKindError struct {
	Tag uint8
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown message kind tag 0x%02x", e.Tag)
}

func (e *UnknownKindError) Unwrap() error {
	return ErrUnknownKind
}

// EncodeError reports a message that cannot be put on the wire
type EncodeError struct {
	Kind  MessageKind
	Field string // empty when the fault is not tied to one field
	Err   error
}

func (e *EncodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("encode %s: field %s: %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("encode %s: %v", e.Kind, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
