// Command srt-push publishes an MPEG-TS file, or a generated stream of
// pop-on captions, to an SRT listener such as "cc608 -srt". The stream
// is paced in real time and can loop with timestamps shifted forward.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	srt "github.com/zsiec/srtgo"

	"github.com/zsiec/cc608/internal/tstest"
)

// frameTicks is one 29.97 fps frame in 90 kHz ticks.
const frameTicks = 3003

func main() {
	addr := flag.String("addr", "127.0.0.1:6000", "SRT listener address")
	streamID := flag.String("streamid", "", "SRT stream ID (default: live/<file name> or live/captions)")
	captions := flag.String("captions", "", "generate a caption stream; captions are separated by '|'")
	hold := flag.Duration("hold", 2*time.Second, "how long each generated caption stays up")
	loop := flag.Bool("loop", false, "restart from the beginning when the input ends")
	duration := flag.Float64("duration", 0, "input duration in seconds (default: from video PTS)")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var (
		data []byte
		id   = *streamID
	)
	switch {
	case *captions != "":
		data = captionStream(strings.Split(*captions, "|"), *hold)
		if id == "" {
			id = "live/captions"
		}
	case flag.NArg() == 1:
		var err error
		data, err = os.ReadFile(flag.Arg(0))
		if err != nil {
			log.Error("reading input", "error", err)
			os.Exit(1)
		}
		if id == "" {
			id = "live/" + baseName(flag.Arg(0))
		}
	default:
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  srt-push [flags] FILE.ts\n")
		fmt.Fprintf(os.Stderr, "  srt-push -captions 'HELLO|WORLD' [flags]\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if len(data)%tstest.PacketSize != 0 {
		log.Warn("input size is not a multiple of the packet size", "size", len(data))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	entries, firstPTS, lastPTS := scanTimestamps(data)
	var span float64
	if firstPTS >= 0 {
		span = float64(lastPTS-firstPTS+frameTicks) / 90000
	}
	secs := selectDuration(*duration, span)
	log.Info("pushing", "addr", *addr, "stream_id", id, "bytes", len(data), "seconds", secs, "loop", *loop)

	cfg := srt.DefaultConfig()
	cfg.StreamID = id
	conn, err := srt.Dial(*addr, cfg)
	if err != nil {
		log.Error("SRT connect failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	p := pacer{bytesPerSec: float64(len(data)) / secs, start: time.Now()}
	for n := 1; ; n++ {
		if err := p.push(conn, data); err != nil {
			if ctx.Err() == nil {
				log.Error("write failed", "error", err)
				os.Exit(1)
			}
			return
		}
		if !*loop {
			log.Info("done", "bytes", p.sent)
			return
		}
		log.Info("loop complete", "loop", n, "bytes", p.sent, "elapsed", time.Since(p.start).Truncate(time.Second))
		if firstPTS >= 0 {
			addTimestampOffset(data, entries, lastPTS-firstPTS+frameTicks)
		}
	}
}

// selectDuration prefers an explicit duration, then the PTS span, then
// one minute.
func selectDuration(override, span float64) float64 {
	if override > 0 {
		return override
	}
	if span > 0 {
		return span
	}
	return 60
}

func baseName(path string) string {
	base := path[strings.LastIndexAny(path, `/\`)+1:]
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

// pacer writes at a constant byte rate measured from start, so pacing
// stays continuous across loops.
type pacer struct {
	bytesPerSec float64
	start       time.Time
	sent        int64
}

// chunkPackets is the number of TS packets per SRT payload.
const chunkPackets = 7

func (p *pacer) push(w io.Writer, data []byte) error {
	chunk := tstest.PacketSize * chunkPackets
	for i := 0; i < len(data); i += chunk {
		end := min(i+chunk, len(data))
		if _, err := w.Write(data[i:end]); err != nil {
			return err
		}
		p.sent += int64(end - i)

		due := time.Duration(float64(p.sent) / p.bytesPerSec * float64(time.Second))
		if wait := due - time.Since(p.start); wait > 0 {
			time.Sleep(wait)
		}
	}
	return nil
}

// captionStream builds an H.264 transport stream that shows each caption
// in pop-on mode on row 15 for hold, then clears the screen.
func captionStream(captions []string, hold time.Duration) []byte {
	s := tstest.NewStream(tstest.StreamTypeH264)
	holdFrames := max(int(hold.Seconds()*30000/1001), 1)

	pts := int64(frameTicks)
	emit := func(frames [][]tstest.Triplet) {
		for _, f := range frames {
			s.CaptionFrame(pts, f...)
			pts += frameTicks
		}
	}

	for _, text := range captions {
		var frames [][]tstest.Triplet
		frames = append(frames, tstest.Control(0x14, 0x20)...) // RCL
		frames = append(frames, tstest.Control(0x14, 0x2E)...) // ENM
		frames = append(frames, tstest.Control(0x14, 0x70)...) // row 15, column 1
		frames = append(frames, tstest.Text(strings.ToUpper(text))...)
		frames = append(frames, tstest.Control(0x14, 0x2F)...) // EOC
		emit(frames)
		for range holdFrames {
			emit([][]tstest.Triplet{nil})
		}
		s.WriteTables()
	}
	emit(tstest.Control(0x14, 0x2C)) // EDM
	return s.Bytes()
}
