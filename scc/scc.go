// Package scc reads and writes Scenarist Closed Caption files.
//
// An SCC file is a header line followed by caption lines of the form
//
//	HH:MM:SS:FF<TAB>9420 9420 94ae 94ae ...
//
// where each four-digit hex word carries one CEA-608 byte pair with
// parity bits intact. A ';' before the frame field marks drop-frame
// timecode.
package scc

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/zsiec/cc608/cea608"
)

// Header is the first line of every SCC file written by Format.
const Header = "Scenarist_SCC V1.0"

// FrameRate is the nominal frame rate used to convert the frame field of
// a timecode to seconds. Drop-frame timecode is not corrected.
const FrameRate = 30

var (
	// ErrTimecode is returned by Format when a cue has no usable time.
	ErrTimecode = errors.New("scc: invalid timecode")

	lineRe = regexp.MustCompile(`^(\d\d):(\d\d):(\d\d)([:;])(\d\d)\t(.*)`)
	wordRe = regexp.MustCompile(`^[0-9A-Fa-f]{4}$`)
)

// Parse reads SCC text and returns one cue per caption line, in file
// order. Lines that do not start with a timecode and a tab are skipped,
// as are words that are not exactly four hex digits.
func Parse(r io.Reader) ([]cea608.Cue, error) {
	var cues []cea608.Cue
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		cue, ok := parseLine(strings.TrimSuffix(sc.Text(), "\r"))
		if ok {
			cues = append(cues, cue)
		}
	}
	if err := sc.Err(); err != nil {
		return cues, fmt.Errorf("scc: reading input: %w", err)
	}
	return cues, nil
}

func parseLine(line string) (cea608.Cue, bool) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return cea608.Cue{}, false
	}
	var f [4]int64
	for i, s := range []string{m[1], m[2], m[3], m[5]} {
		f[i], _ = strconv.ParseInt(s, 10, 64)
	}
	seconds := f[0]*3600 + f[1]*60 + f[2]
	t := new(big.Rat).SetFrac64(seconds*FrameRate+f[3], FrameRate)

	var data []byte
	for _, w := range strings.Fields(m[6]) {
		if !wordRe.MatchString(w) {
			continue
		}
		b, err := hex.DecodeString(w)
		if err != nil {
			continue
		}
		data = append(data, b...)
	}
	return cea608.Cue{Time: t, DropFrame: m[4] == ";", Data: data}, true
}

// Timecode formats t (seconds) as HH:MM:SS:FF, using ';' as the last
// separator when dropFrame is set. Fractions of a frame are truncated.
func Timecode(t *big.Rat, dropFrame bool) (string, error) {
	if t == nil || t.Sign() < 0 {
		return "", ErrTimecode
	}
	r := new(big.Rat).Mul(t, big.NewRat(FrameRate, 1))
	frames := new(big.Int).Quo(r.Num(), r.Denom())
	if !frames.IsInt64() {
		return "", ErrTimecode
	}
	n := frames.Int64()
	ff := n % FrameRate
	s := n / FrameRate
	if s/3600 > 99 {
		return "", ErrTimecode
	}
	sep := ':'
	if dropFrame {
		sep = ';'
	}
	return fmt.Sprintf("%02d:%02d:%02d%c%02d", s/3600, s/60%60, s%60, sep, ff), nil
}

// Format writes cues as an SCC file. A cue with an odd number of bytes
// is padded with 0x80.
func Format(w io.Writer, cues []cea608.Cue) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n", Header)
	for i, cue := range cues {
		tc, err := Timecode(cue.Time, cue.DropFrame)
		if err != nil {
			return fmt.Errorf("scc: cue %d: %w", i, err)
		}
		data := cue.Data
		if len(data)%2 != 0 {
			data = append(data[:len(data):len(data)], 0x80)
		}
		words := make([]string, 0, len(data)/2)
		for j := 0; j+1 < len(data); j += 2 {
			words = append(words, hex.EncodeToString(data[j:j+2]))
		}
		fmt.Fprintf(bw, "\n%s\t%s\n", tc, strings.Join(words, " "))
	}
	return bw.Flush()
}
