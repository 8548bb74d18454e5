package protocol

import (
	"fmt"
	"strings"
)

// Message is one protocol exchange: a kind and its payload
type Message struct {
	Kind    MessageKind
	Payload Payload // nil for kinds without a descriptor
}

// NewMessage returns a message of kind carrying a zero payload.
// get_ requests are sent this way; the device fills in the reply.
func NewMessage(kind MessageKind) Message {
	return Message{Kind: kind, Payload: NewPayload(kind)}
}

func (m Message) String() string {
	values := FieldValues(m.Payload)
	if len(values) == 0 {
		return m.Kind.String()
	}
	parts := make([]string, len(values))
	for i, fv := range values {
		parts[i] = fmt.Sprintf("%s=%v", fv.Name, fv.Value)
	}
	return m.Kind.String() + "{" + strings.Join(parts, " ") + "}"
}

// Codec converts between messages and fixed-size packets
type Codec struct {
	packetSize int
}

var defaultCodec = mustCodec(DefaultPacketSize)

func mustCodec(size int) *Codec {
	c, err := NewCodec(size)
	if err != nil {
		panic(err)
	}
	return c
}

// NewCodec creates a codec for packets of packetSize bytes.
// The size must hold the tag and the largest registered payload so that
// decoding any registered kind always succeeds.
func NewCodec(packetSize int) (*Codec, error) {
	if need := TagSize + MaxPayloadSize(); packetSize < need {
		return nil, fmt.Errorf("packet size %d too small: need at least %d bytes", packetSize, need)
	}
	if packetSize > MaxPacketSize {
		return nil, fmt.Errorf("packet size %d exceeds maximum %d", packetSize, MaxPacketSize)
	}
	return &Codec{packetSize: packetSize}, nil
}

// PacketSize returns the fixed packet length
func (c *Codec) PacketSize() int {
	return c.packetSize
}

// Encode builds the wire packet for m. The result is always PacketSize bytes.
func (c *Codec) Encode(m Message) ([]byte, error) {
	info, ok := LookupKind(m.Kind)
	if !ok {
		return nil, &EncodeError{Kind: m.Kind, Err: ErrUnknownKind}
	}

	if err := checkPayload(info, m.Payload); err != nil {
		return nil, &EncodeError{Kind: m.Kind, Err: err}
	}

	packet := make([]byte, c.packetSize)
	packet[TagPosition] = byte(m.Kind)

	if info.Descriptor == nil {
		return packet, nil
	}

	enc := &encodeVisitor{out: NewPacketWriter(packet[PayloadPosition:])}
	m.Payload.VisitFields(enc)
	if enc.err != nil {
		return nil, &EncodeError{Kind: m.Kind, Field: enc.field, Err: enc.err}
	}

	return packet, nil
}

// Decode parses a wire packet. It fails only on a wrong length or an
// unregistered tag; trailing payload bytes are ignored.
func (c *Codec) Decode(packet []byte) (Message, error) {
	if len(packet) != c.packetSize {
		return Message{}, fmt.Errorf("%w: got %d bytes, want %d", ErrPacketLength, len(packet), c.packetSize)
	}

	tag := packet[TagPosition]
	info, ok := LookupKind(MessageKind(tag))
	if !ok {
		return Message{}, &UnknownKindError{Tag: tag}
	}

	msg := Message{Kind: info.Kind}
	if info.Descriptor == nil {
		return msg, nil
	}

	msg.Payload = info.Descriptor.New()
	msg.Payload.VisitFields(&decodeVisitor{in: NewPacketReader(packet[PayloadPosition:])})
	return msg, nil
}

// checkPayload enforces that the payload variant matches the descriptor
func checkPayload(info KindInfo, p Payload) error {
	if isNilPayload(p) {
		p = nil
	}
	switch {
	case info.Descriptor == nil && p == nil:
		return nil
	case info.Descriptor == nil:
		return fmt.Errorf("%w: %s carries no payload, got %s", ErrPayloadMismatch, info.Name, p.PayloadName())
	case p == nil:
		return fmt.Errorf("%w: %s requires a %s payload", ErrPayloadMismatch, info.Name, info.Descriptor.Name)
	case p.PayloadName() != info.Descriptor.Name:
		return fmt.Errorf("%w: %s requires a %s payload, got %s", ErrPayloadMismatch, info.Name, info.Descriptor.Name, p.PayloadName())
	}
	return nil
}

// Encode encodes m into a DefaultPacketSize packet
func Encode(m Message) ([]byte, error) {
	return defaultCodec.Encode(m)
}

// Decode decodes a DefaultPacketSize packet
func Decode(packet []byte) (Message, error) {
	return defaultCodec.Decode(packet)
}
