package mpegts

import (
	"bytes"
	"errors"
	"testing"
)

func encodePTS(marker byte, v int64) []byte {
	return []byte{
		marker<<4 | byte(v>>29)&0x0E | 0x01,
		byte(v >> 22),
		byte(v>>14)&0xFE | 0x01,
		byte(v >> 7),
		byte(v<<1) | 0x01,
	}
}

// buildVideoPES builds an unbounded video PES packet with an optional PTS.
func buildVideoPES(pts int64, hasPTS bool, data []byte) []byte {
	pes := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, 0x00, 0x00}
	if hasPTS {
		pes[7] = 0x80
		pes[8] = 5
		pes = append(pes, encodePTS(0x2, pts)...)
	}
	return append(pes, data...)
}

func TestParsePESWithPTS(t *testing.T) {
	t.Parallel()
	data := []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0xF0}
	h, es, err := parsePES(buildVideoPES(123456789, true, data))
	if err != nil {
		t.Fatal(err)
	}
	if h.streamID != 0xE0 {
		t.Errorf("stream id = 0x%02X, want 0xE0", h.streamID)
	}
	if !h.hasPTS || h.pts != 123456789 {
		t.Errorf("pts = %d (%v), want 123456789", h.pts, h.hasPTS)
	}
	if !bytes.Equal(es, data) {
		t.Errorf("data = % x, want % x", es, data)
	}
}

func TestParsePESTimestampRange(t *testing.T) {
	t.Parallel()
	for _, v := range []int64{0, 1, 90000, 1<<32 + 5, 1<<33 - 1} {
		h, _, err := parsePES(buildVideoPES(v, true, nil))
		if err != nil {
			t.Fatal(err)
		}
		if h.pts != v {
			t.Errorf("pts = %d, want %d", h.pts, v)
		}
	}
}

func TestParsePESPTSAndDTS(t *testing.T) {
	t.Parallel()
	pes := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, 0xC0, 10}
	pes = append(pes, encodePTS(0x3, 3003)...)
	pes = append(pes, encodePTS(0x1, 0)...)
	pes = append(pes, 0x42)
	h, es, err := parsePES(pes)
	if err != nil {
		t.Fatal(err)
	}
	if h.pts != 3003 {
		t.Errorf("pts = %d, want 3003", h.pts)
	}
	if !bytes.Equal(es, []byte{0x42}) {
		t.Errorf("data = % x", es)
	}
}

func TestParsePESBoundedLength(t *testing.T) {
	t.Parallel()
	pes := buildVideoPES(0, false, []byte{1, 2, 3, 4})
	pes[5] = 3 + 2 // header flags and length plus two data bytes
	pes = append(pes, 0xFF, 0xFF)
	_, es, err := parsePES(pes)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(es, []byte{1, 2}) {
		t.Errorf("data = % x, want 01 02", es)
	}
}

func TestParsePESErrors(t *testing.T) {
	t.Parallel()
	if _, _, err := parsePES([]byte{0x00, 0x00, 0x01}); !errors.Is(err, ErrShortPES) {
		t.Errorf("short: err = %v, want ErrShortPES", err)
	}
	bad := buildVideoPES(0, false, []byte{1})
	bad[2] = 0x02
	if _, _, err := parsePES(bad); !errors.Is(err, ErrStartCode) {
		t.Errorf("start code: err = %v, want ErrStartCode", err)
	}
	over := buildVideoPES(0, false, nil)
	over[8] = 20
	if _, _, err := parsePES(over); !errors.Is(err, ErrShortPES) {
		t.Errorf("header length: err = %v, want ErrShortPES", err)
	}
}
