package protocol

// PacketReader reads consecutive fields from the payload region of a packet
type PacketReader struct {
	data []byte
}

// NewPacketReader creates a new PacketReader
func NewPacketReader(data []byte) *PacketReader {
	return &PacketReader{data: data}
}

// Next returns the next n bytes and advances past them.
// Missing bytes read as zero, matching the zero padding of the wire format.
func (r *PacketReader) Next(n int) []byte {
	out := make([]byte, n)
	copy(out, r.data)
	if n > len(r.data) {
		n = len(r.data)
	}
	r.data = r.data[n:]
	return out
}

// PacketWriter fills a fixed-size packet buffer field by field.
// Writing past the end records ErrPayloadTooLarge instead of growing.
type PacketWriter struct {
	buf []byte
	pos int
	err error
}

// NewPacketWriter creates a PacketWriter that fills buf from position 0
func NewPacketWriter(buf []byte) *PacketWriter {
	return &PacketWriter{buf: buf}
}

func (w *PacketWriter) Output(data []byte) {
	if w.err != nil {
		return
	}
	if w.pos+len(data) > len(w.buf) {
		w.err = ErrPayloadTooLarge
		return
	}
	w.pos += copy(w.buf[w.pos:], data)
}

// Err returns the first overflow error, if any
func (w *PacketWriter) Err() error {
	return w.err
}
