package moq

import (
	"bufio"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// StreamTypeSubgroupSIDExt is a subgroup stream with an explicit subgroup
// ID in the header and per-object extension headers.
const StreamTypeSubgroupSIDExt uint64 = 0x0d

// ExtCaptureTimestamp is the LOC capture timestamp extension
// (draft-ietf-moq-loc-01). Even IDs carry a varint value, here
// microseconds.
const ExtCaptureTimestamp uint64 = 2

// SubgroupHeader opens a subgroup data stream.
type SubgroupHeader struct {
	TrackAlias uint64
	GroupID    uint64
	SubgroupID uint64
	Priority   byte
}

// Object is one object of a subgroup stream.
type Object struct {
	ID uint64
	// CaptureTime is the LOC capture timestamp in microseconds, if present.
	CaptureTime    uint64
	HasCaptureTime bool
	Payload        []byte
}

// Writer frames caption payloads as objects of a single subgroup. The
// subgroup header is written before the first object.
type Writer struct {
	w          io.Writer
	hdr        SubgroupHeader
	objectID   uint64
	headerDone bool
}

// NewWriter returns a Writer for the given track alias and group.
// publisherPriority ranges from 0 (highest) to 255 (lowest).
func NewWriter(w io.Writer, trackAlias, groupID uint64, publisherPriority byte) *Writer {
	return &Writer{
		w: w,
		hdr: SubgroupHeader{
			TrackAlias: trackAlias,
			GroupID:    groupID,
			Priority:   publisherPriority,
		},
	}
}

// HeaderSize returns the encoded size of the subgroup header.
func (m *Writer) HeaderSize() int64 {
	return int64(quicvarint.Len(StreamTypeSubgroupSIDExt) +
		quicvarint.Len(m.hdr.TrackAlias) +
		quicvarint.Len(m.hdr.GroupID) +
		quicvarint.Len(m.hdr.SubgroupID) +
		1)
}

// WriteObject writes one object with a capture timestamp in microseconds
// and returns the bytes written, including the header on the first call.
func (m *Writer) WriteObject(captureMicros uint64, payload []byte) (int64, error) {
	var n int64
	if !m.headerDone {
		var buf []byte
		buf = quicvarint.Append(buf, StreamTypeSubgroupSIDExt)
		buf = quicvarint.Append(buf, m.hdr.TrackAlias)
		buf = quicvarint.Append(buf, m.hdr.GroupID)
		buf = quicvarint.Append(buf, m.hdr.SubgroupID)
		buf = append(buf, m.hdr.Priority)
		if _, err := m.w.Write(buf); err != nil {
			return 0, err
		}
		m.headerDone = true
		n += int64(len(buf))
	}

	var exts []byte
	exts = quicvarint.Append(exts, ExtCaptureTimestamp)
	exts = quicvarint.Append(exts, captureMicros)

	var hdr []byte
	hdr = quicvarint.Append(hdr, m.objectID)
	hdr = quicvarint.Append(hdr, uint64(len(exts)))
	hdr = append(hdr, exts...)
	hdr = quicvarint.Append(hdr, uint64(len(payload)))
	m.objectID++

	if _, err := m.w.Write(hdr); err != nil {
		return n, err
	}
	if _, err := m.w.Write(payload); err != nil {
		return n + int64(len(hdr)), err
	}
	return n + int64(len(hdr)+len(payload)), nil
}

// Reader parses a subgroup stream written by Writer.
type Reader struct {
	r   quicvarint.Reader
	hdr *SubgroupHeader
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	qr, ok := r.(quicvarint.Reader)
	if !ok {
		qr = bufio.NewReader(r)
	}
	return &Reader{r: qr}
}

// Header reads the subgroup header if it has not been read yet.
func (m *Reader) Header() (SubgroupHeader, error) {
	if m.hdr != nil {
		return *m.hdr, nil
	}
	typ, err := quicvarint.Read(m.r)
	if err != nil {
		return SubgroupHeader{}, &ParseError{Field: "stream type", Err: err}
	}
	if typ != StreamTypeSubgroupSIDExt {
		return SubgroupHeader{}, &ParseError{Field: "stream type", Err: ErrStreamType}
	}
	var h SubgroupHeader
	for _, f := range []struct {
		name string
		dst  *uint64
	}{
		{"track alias", &h.TrackAlias},
		{"group id", &h.GroupID},
		{"subgroup id", &h.SubgroupID},
	} {
		if *f.dst, err = quicvarint.Read(m.r); err != nil {
			return SubgroupHeader{}, &ParseError{Field: f.name, Err: err}
		}
	}
	if h.Priority, err = m.r.ReadByte(); err != nil {
		return SubgroupHeader{}, &ParseError{Field: "publisher priority", Err: err}
	}
	m.hdr = &h
	return h, nil
}

// Next reads the next object. It returns io.EOF when the stream ends
// cleanly between objects.
func (m *Reader) Next() (Object, error) {
	if _, err := m.Header(); err != nil {
		return Object{}, err
	}
	var obj Object
	var err error
	if obj.ID, err = quicvarint.Read(m.r); err != nil {
		if err == io.EOF {
			return Object{}, io.EOF
		}
		return Object{}, &ParseError{Field: "object id", Err: err}
	}
	extLen, err := quicvarint.Read(m.r)
	if err != nil {
		return Object{}, &ParseError{Field: "extension length", Err: err}
	}
	exts := make([]byte, extLen)
	if _, err := io.ReadFull(m.r, exts); err != nil {
		return Object{}, &ParseError{Field: "extensions", Err: err}
	}
	if err := parseExtensions(exts, &obj); err != nil {
		return Object{}, &ParseError{Field: "extensions", Err: err}
	}
	size, err := quicvarint.Read(m.r)
	if err != nil {
		return Object{}, &ParseError{Field: "payload length", Err: err}
	}
	obj.Payload = make([]byte, size)
	if _, err := io.ReadFull(m.r, obj.Payload); err != nil {
		return Object{}, &ParseError{Field: "payload", Err: err}
	}
	return obj, nil
}

// parseExtensions walks key-value-pairs: even IDs carry a varint, odd IDs
// a length-prefixed byte string.
func parseExtensions(b []byte, obj *Object) error {
	for len(b) > 0 {
		id, n, err := quicvarint.Parse(b)
		if err != nil {
			return ErrExtensions
		}
		b = b[n:]
		v, n, err := quicvarint.Parse(b)
		if err != nil {
			return ErrExtensions
		}
		b = b[n:]
		if id%2 == 1 {
			if v > uint64(len(b)) {
				return ErrExtensions
			}
			b = b[v:]
			continue
		}
		if id == ExtCaptureTimestamp {
			obj.CaptureTime = v
			obj.HasCaptureTime = true
		}
	}
	return nil
}
