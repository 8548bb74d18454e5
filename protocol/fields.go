package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// FieldType identifies the binary representation of a payload field
type FieldType uint8

const (
	FieldUint8 FieldType = iota + 1
	FieldUint32
	FieldInt32
	FieldBool
	FieldFixed // signed Q16.16
	FieldText  // fixed width, zero padded
)

// fixedScale is the Q16.16 scaling factor
const fixedScale = 1 << 16

func (t FieldType) String() string {
	switch t {
	case FieldUint8:
		return "u8"
	case FieldUint32:
		return "u32"
	case FieldInt32:
		return "i32"
	case FieldBool:
		return "bool"
	case FieldFixed:
		return "fixed16.16"
	case FieldText:
		return "text"
	default:
		return fmt.Sprintf("field(%d)", uint8(t))
	}
}

// Width returns the encoded size of fixed-width types.
// Text fields carry their width in the Field instead.
func (t FieldType) Width() int {
	switch t {
	case FieldUint8, FieldBool:
		return 1
	case FieldUint32, FieldInt32, FieldFixed:
		return 4
	default:
		return 0
	}
}

// Field describes one payload field
type Field struct {
	Name   string
	Type   FieldType
	Offset int // relative to the start of the payload region
	Width  int
}

func (f Field) String() string {
	if f.Type == FieldText {
		return fmt.Sprintf("%s:text[%d]", f.Name, f.Width)
	}
	return fmt.Sprintf("%s:%s", f.Name, f.Type)
}

// FieldVisitor walks the fields of a payload in wire order.
// A payload declares its layout once by calling the visitor for every field.
type FieldVisitor interface {
	Uint8(name string, v *uint8)
	Uint32(name string, v *uint32)
	Int32(name string, v *int32)
	Bool(name string, v *bool)
	Fixed(name string, v *float64)
	Text(name string, v *string, width int)
}

// Payload is the structured value carried by a message kind.
// Implementations are the payload variants in payloads.go.
type Payload interface {
	// PayloadName matches the Name of the kind's PayloadDescriptor
	PayloadName() string

	// VisitFields declares the wire layout
	VisitFields(v FieldVisitor)
}

// PayloadDescriptor is the name and layout of a payload variant
type PayloadDescriptor struct {
	Name   string
	Fields []Field
	Size   int

	newPayload func() Payload
}

// New returns a zero value of the described payload
func (d *PayloadDescriptor) New() Payload {
	return d.newPayload()
}

// Field returns the field with the given name
func (d *PayloadDescriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// describe builds a descriptor by visiting a zero payload
func describe(newPayload func() Payload) *PayloadDescriptor {
	p := newPayload()
	layout := &layoutVisitor{}
	p.VisitFields(layout)
	return &PayloadDescriptor{
		Name:       p.PayloadName(),
		Fields:     layout.fields,
		Size:       layout.offset,
		newPayload: newPayload,
	}
}

type layoutVisitor struct {
	fields []Field
	offset int
}

func (l *layoutVisitor) add(name string, t FieldType, width int) {
	l.fields = append(l.fields, Field{Name: name, Type: t, Offset: l.offset, Width: width})
	l.offset += width
}

func (l *layoutVisitor) Uint8(name string, _ *uint8) { l.add(name, FieldUint8, 1) }
func (l *layoutVisitor) Uint32(name string, _ *uint32) { l.add(name, FieldUint32, 4) }
func (l *layoutVisitor) Int32(name string, _ *int32) { l.add(name, FieldInt32, 4) }
func (l *layoutVisitor) Bool(name string, _ *bool) { l.add(name, FieldBool, 1) }
func (l *layoutVisitor) Fixed(name string, _ *float64) { l.add(name, FieldFixed, 4) }
func (l *layoutVisitor) Text(name string, _ *string, w int) { l.add(name, FieldText, w) }

// encodeVisitor writes fields little-endian into a PacketWriter.
// The first failure is kept and later fields are skipped.
type encodeVisitor struct {
	out   *PacketWriter
	field string
	err   error
}

func (e *encodeVisitor) fail(name string, err error) {
	if e.err == nil {
		e.field = name
		e.err = err
	}
}

func (e *encodeVisitor) write(name string, data []byte) {
	if e.err != nil {
		return
	}
	e.out.Output(data)
	if err := e.out.Err(); err != nil {
		e.fail(name, err)
	}
}

func (e *encodeVisitor) Uint8(name string, v *uint8) {
	e.write(name, []byte{*v})
}

func (e *encodeVisitor) Uint32(name string, v *uint32) {
	e.write(name, binary.LittleEndian.AppendUint32(nil, *v))
}

func (e *encodeVisitor) Int32(name string, v *int32) {
	e.write(name, binary.LittleEndian.AppendUint32(nil, uint32(*v)))
}

func (e *encodeVisitor) Bool(name string, v *bool) {
	var b byte
	if *v {
		b = 1
	}
	e.write(name, []byte{b})
}

func (e *encodeVisitor) Fixed(name string, v *float64) {
	q, err := toFixed(*v)
	if err != nil {
		e.fail(name, err)
		return
	}
	e.write(name, binary.LittleEndian.AppendUint32(nil, uint32(q)))
}

func (e *encodeVisitor) Text(name string, v *string, width int) {
	if len(*v) > width || bytes.IndexByte([]byte(*v), 0) >= 0 {
		e.fail(name, fmt.Errorf("%w: text %q does not fit %d bytes", ErrFieldRange, *v, width))
		return
	}
	buf := make([]byte, width)
	copy(buf, *v)
	e.write(name, buf)
}

// decodeVisitor reads fields from a PacketReader. It cannot fail.
type decodeVisitor struct {
	in *PacketReader
}

func (d *decodeVisitor) Uint8(_ string, v *uint8) {
	*v = d.in.Next(1)[0]
}

func (d *decodeVisitor) Uint32(_ string, v *uint32) {
	*v = binary.LittleEndian.Uint32(d.in.Next(4))
}

func (d *decodeVisitor) Int32(_ string, v *int32) {
	*v = int32(binary.LittleEndian.Uint32(d.in.Next(4)))
}

func (d *decodeVisitor) Bool(_ string, v *bool) {
	*v = d.in.Next(1)[0] != 0
}

func (d *decodeVisitor) Fixed(_ string, v *float64) {
	*v = fromFixed(int32(binary.LittleEndian.Uint32(d.in.Next(4))))
}

func (d *decodeVisitor) Text(_ string, v *string, width int) {
	raw := d.in.Next(width)
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	*v = string(raw)
}

func toFixed(v float64) (int32, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v is not finite", ErrFieldRange, v)
	}
	q := math.Round(v * fixedScale)
	if q < math.MinInt32 || q > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %v outside fixed16.16 range", ErrFieldRange, v)
	}
	return int32(q), nil
}

func fromFixed(q int32) float64 {
	return float64(q) / fixedScale
}

// FieldValue is a named field value, in wire order
type FieldValue struct {
	Name  string
	Value any
}

// isNilPayload also catches typed nil pointers stored in the interface
func isNilPayload(p Payload) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// FieldValues lists the fields of p in wire order.
// It returns nil for a nil payload.
func FieldValues(p Payload) []FieldValue {
	if isNilPayload(p) {
		return nil
	}
	c := &collectVisitor{}
	p.VisitFields(c)
	return c.values
}

type collectVisitor struct {
	values []FieldValue
}

func (c *collectVisitor) add(name string, v any) {
	c.values = append(c.values, FieldValue{Name: name, Value: v})
}

func (c *collectVisitor) Uint8(name string, v *uint8) { c.add(name, *v) }
func (c *collectVisitor) Uint32(name string, v *uint32) { c.add(name, *v) }
func (c *collectVisitor) Int32(name string, v *int32) { c.add(name, *v) }
func (c *collectVisitor) Bool(name string, v *bool) { c.add(name, *v) }
func (c *collectVisitor) Fixed(name string, v *float64) { c.add(name, *v) }
func (c *collectVisitor) Text(name string, v *string, _ int) { c.add(name, *v) }
