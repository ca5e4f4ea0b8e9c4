package mpegts

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// pidBuffer reassembles the payload units of one PID.
type pidBuffer struct {
	data    []byte
	started bool
	lastCC  uint8
}

// add appends a packet and returns the previous unit when p starts a new
// one. Packets are dropped until the first unit start, after a transport
// error, and after an unsignalled continuity gap.
func (b *pidBuffer) add(p packet, log *slog.Logger) (unit []byte, ok bool) {
	if p.tei {
		b.reset()
		return nil, false
	}
	if !p.hasPayload {
		return nil, false
	}
	if b.started && !p.pusi && !p.discontinuity {
		if p.cc == b.lastCC {
			return nil, false
		}
		if p.cc != (b.lastCC+1)&0x0F {
			log.Debug("continuity gap, dropping unit", "pid", p.pid, "expected", (b.lastCC+1)&0x0F, "got", p.cc)
			b.reset()
			return nil, false
		}
	}
	if p.pusi {
		if b.started && len(b.data) > 0 {
			unit, ok = b.data, true
		}
		b.data = append([]byte(nil), p.payload...)
		b.started = true
	} else if b.started {
		b.data = append(b.data, p.payload...)
	}
	b.lastCC = p.cc
	return unit, ok
}

func (b *pidBuffer) take() ([]byte, bool) {
	if !b.started || len(b.data) == 0 {
		return nil, false
	}
	data := b.data
	b.reset()
	return data, true
}

func (b *pidBuffer) reset() {
	b.data = nil
	b.started = false
}

// Reader yields the access units of the first H.264 or H.265 stream
// announced in the transport stream's PMT.
type Reader struct {
	ctx     context.Context
	log     *slog.Logger
	src     io.Reader
	readBuf []byte
	pktSize int

	pmtPIDs map[uint16]bool
	psi     map[uint16]*pidBuffer
	video   ElementaryStream
	pes     pidBuffer

	lastPTS int64
	ptsWrap int64
	hasLast bool

	ready []*AccessUnit
	eof   bool
}

// ReaderOptLogger sets the logger. The default is slog.Default().
func ReaderOptLogger(log *slog.Logger) func(*Reader) {
	return func(r *Reader) {
		if log != nil {
			r.log = log
		}
	}
}

// ReaderOptPacketSize sets the on-disk packet size. 192 (M2TS, with a
// 4-byte timecode prefix) and 204 (trailing Reed-Solomon bytes) are
// accepted alongside the default 188.
func ReaderOptPacketSize(size int) func(*Reader) {
	return func(r *Reader) {
		if size == 188 || size == 192 || size == 204 {
			r.pktSize = size
		}
	}
}

// NewReader creates a Reader over src.
func NewReader(ctx context.Context, src io.Reader, opts ...func(*Reader)) *Reader {
	r := &Reader{
		ctx:     ctx,
		log:     slog.Default(),
		src:     src,
		pktSize: PacketSize,
		pmtPIDs: make(map[uint16]bool),
		psi:     make(map[uint16]*pidBuffer),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "mpegts")
	r.readBuf = make([]byte, r.pktSize)
	return r
}

// Video returns the selected video stream, if the PMT has been seen.
func (r *Reader) Video() (ElementaryStream, bool) {
	return r.video, r.video.PID != 0
}

// Next returns the next video access unit. It returns io.EOF once the
// input is exhausted and the last unit has been returned.
func (r *Reader) Next() (*AccessUnit, error) {
	for {
		if len(r.ready) > 0 {
			au := r.ready[0]
			r.ready = r.ready[1:]
			return au, nil
		}
		if r.eof {
			return nil, io.EOF
		}
		if err := r.ctx.Err(); err != nil {
			return nil, err
		}

		if _, err := io.ReadFull(r.src, r.readBuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				r.eof = true
				if data, ok := r.pes.take(); ok {
					r.emit(data)
				}
				continue
			}
			return nil, err
		}

		// M2TS prefixes a timecode, DVB-ASI appends parity bytes.
		buf := r.readBuf
		if r.pktSize == 192 {
			buf = buf[4:]
		}
		p, err := parsePacket(buf[:PacketSize])
		if err != nil {
			r.log.Debug("skipping corrupt packet", "error", err)
			continue
		}
		r.handle(p)
	}
}

func (r *Reader) handle(p packet) {
	switch {
	case p.pid == pidNull:
	case p.pid == pidPAT || r.pmtPIDs[p.pid]:
		r.handlePSI(p)
	case r.video.PID != 0 && p.pid == r.video.PID:
		if data, ok := r.pes.add(p, r.log); ok {
			r.emit(data)
		}
	}
}

func (r *Reader) handlePSI(p packet) {
	buf := r.psi[p.pid]
	if buf == nil {
		buf = &pidBuffer{}
		r.psi[p.pid] = buf
	}
	buf.add(p, r.log)
	if !buf.started {
		return
	}
	secs, complete := sections(buf.data)
	if !complete {
		return
	}
	buf.reset()

	for _, sec := range secs {
		switch sec[0] {
		case tableIDPAT:
			pids, err := parsePAT(sec)
			if err != nil {
				r.log.Debug("skipping table", "pid", p.pid, "error", err)
				continue
			}
			for _, pid := range pids {
				r.pmtPIDs[pid] = true
			}
		case tableIDPMT:
			streams, err := parsePMT(sec)
			if err != nil {
				r.log.Debug("skipping table", "pid", p.pid, "error", err)
				continue
			}
			r.selectVideo(streams)
		}
	}
}

func (r *Reader) selectVideo(streams []ElementaryStream) {
	if r.video.PID != 0 {
		return
	}
	for _, es := range streams {
		if es.IsVideo() {
			r.video = es
			r.log.Info("found video PID", "pid", es.PID, "codec", es.Codec())
			return
		}
	}
}

func (r *Reader) emit(data []byte) {
	h, es, err := parsePES(data)
	if err != nil {
		r.log.Debug("skipping PES", "pid", r.video.PID, "error", err)
		return
	}
	au := &AccessUnit{Stream: r.video, Data: es}
	if h.hasPTS {
		au.PTS = r.unwrap(h.pts)
		au.HasPTS = true
	}
	r.ready = append(r.ready, au)
}

// unwrap extends a 33-bit PTS so it keeps increasing across rollover.
// Reordered B-frame timestamps step back by far less than half the range.
func (r *Reader) unwrap(pts int64) int64 {
	const span = int64(1) << 33
	if r.hasLast {
		switch d := pts - r.lastPTS; {
		case d < -span/2:
			r.ptsWrap += span
		case d > span/2 && r.ptsWrap > 0:
			r.ptsWrap -= span
		}
	}
	r.lastPTS = pts
	r.hasLast = true
	return pts + r.ptsWrap
}
