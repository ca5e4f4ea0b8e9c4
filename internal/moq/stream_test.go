package moq

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/quic-go/quic-go/quicvarint"
)

func TestWriterFirstObjectCarriesHeader(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWriter(&buf, 3, 0, 128)

	n, err := w.WriteObject(1_000_000, []byte("HI"))
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
	}

	want := []byte{
		0x0d, 0x03, 0x00, 0x00, 0x80, // subgroup header
		0x00,                         // object id
		0x05,                         // extension length
		0x02, 0x80, 0x0F, 0x42, 0x40, // capture timestamp 1s
		0x02, 'H', 'I',
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("wire = % x\nwant   % x", buf.Bytes(), want)
	}
	if w.HeaderSize() != 5 {
		t.Errorf("HeaderSize = %d, want 5", w.HeaderSize())
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWriter(&buf, 7, 1<<20, 0)
	payloads := [][]byte{[]byte("first"), nil, bytes.Repeat([]byte{'x'}, 300)}
	for i, p := range payloads {
		if _, err := w.WriteObject(uint64(i)*33_367, p); err != nil {
			t.Fatal(err)
		}
	}

	r := NewReader(&buf)
	hdr, err := r.Header()
	if err != nil {
		t.Fatal(err)
	}
	if hdr.TrackAlias != 7 || hdr.GroupID != 1<<20 || hdr.Priority != 0 {
		t.Errorf("header = %+v", hdr)
	}
	for i, p := range payloads {
		obj, err := r.Next()
		if err != nil {
			t.Fatalf("object %d: %v", i, err)
		}
		if obj.ID != uint64(i) {
			t.Errorf("object %d id = %d", i, obj.ID)
		}
		if !obj.HasCaptureTime || obj.CaptureTime != uint64(i)*33_367 {
			t.Errorf("object %d capture time = %d", i, obj.CaptureTime)
		}
		if !bytes.Equal(obj.Payload, p) {
			t.Errorf("object %d payload length = %d, want %d", i, len(obj.Payload), len(p))
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestReaderRejectsStreamType(t *testing.T) {
	t.Parallel()
	r := NewReader(bytes.NewReader([]byte{0x04, 0x01, 0x00, 0x00}))
	_, err := r.Next()
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Field != "stream type" || !errors.Is(err, ErrStreamType) {
		t.Errorf("err = %v, want stream type ParseError", err)
	}
}

func TestReaderTruncatedPayload(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewWriter(&buf, 1, 0, 0)
	if _, err := w.WriteObject(0, []byte("truncated")); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()[:buf.Len()-3]
	_, err := NewReader(bytes.NewReader(data)).Next()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestParseExtensionsSkipsOddIDs(t *testing.T) {
	t.Parallel()
	var b []byte
	b = quicvarint.Append(b, 13)
	b = quicvarint.Append(b, 3)
	b = append(b, 0xAA, 0xBB, 0xCC)
	b = quicvarint.Append(b, 4)
	b = quicvarint.Append(b, 0xE0)
	b = quicvarint.Append(b, ExtCaptureTimestamp)
	b = quicvarint.Append(b, 42)

	var obj Object
	if err := parseExtensions(b, &obj); err != nil {
		t.Fatal(err)
	}
	if !obj.HasCaptureTime || obj.CaptureTime != 42 {
		t.Errorf("capture time = %d (%v), want 42", obj.CaptureTime, obj.HasCaptureTime)
	}
	if err := parseExtensions([]byte{0x0D, 0x05, 0x01}, &obj); !errors.Is(err, ErrExtensions) {
		t.Errorf("err = %v, want ErrExtensions", err)
	}
}

type failWriter struct{ after int }

func (f *failWriter) Write(p []byte) (int, error) {
	if f.after == 0 {
		return 0, io.ErrClosedPipe
	}
	f.after--
	return len(p), nil
}

func TestWriterPropagatesErrors(t *testing.T) {
	t.Parallel()
	for after := 0; after < 3; after++ {
		w := NewWriter(&failWriter{after: after}, 1, 0, 0)
		if _, err := w.WriteObject(0, []byte("x")); !errors.Is(err, io.ErrClosedPipe) {
			t.Errorf("fail after %d writes: err = %v", after, err)
		}
	}
}
