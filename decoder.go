package loom

import (
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// Decoder turns an append-only byte sequence into Frames. It tolerates
// frame boundaries that split across chunks: undecoded trailing bytes of a
// multi-byte character and the trailing partial line both persist across
// Decode calls. Decoder state lives for one session and is discarded with
// it.
type Decoder struct {
	dec     *encoding.Decoder
	pending []byte // raw bytes not yet decodable (incomplete multi-byte tail)
	partial string // decoded text of the current unterminated line
	logger  zerolog.Logger
}

// NewDecoder creates a Decoder for the given charset as declared by the
// transport. Unknown or empty charsets fall back to UTF-8.
func NewDecoder(charset string, logger zerolog.Logger) *Decoder {
	var enc encoding.Encoding = unicode.UTF8
	if charset != "" {
		if e, err := htmlindex.Get(charset); err == nil {
			enc = e
		} else {
			logger.Warn().Str("charset", charset).Msg("unknown charset, falling back to utf-8")
		}
	}
	return &Decoder{
		dec:    enc.NewDecoder(),
		logger: logger,
	}
}

// Decode consumes one transport chunk and returns the complete frames it
// yields. A malformed line never aborts the stream: the anomaly is logged
// and subsequent lines are processed normally.
func (d *Decoder) Decode(chunk []byte) []Frame {
	d.partial += d.decodeText(chunk)

	var frames []Frame
	for {
		idx := strings.IndexByte(d.partial, '\n')
		if idx < 0 {
			return frames
		}
		line := strings.TrimSuffix(d.partial[:idx], "\r")
		d.partial = d.partial[idx+1:]
		if f, ok := d.parseLine(line); ok {
			frames = append(frames, f)
		}
	}
}

// decodeText converts raw chunk bytes to text using the declared encoding.
// An incomplete trailing sequence is buffered rather than emitted
// malformed; it completes when the next chunk arrives.
func (d *Decoder) decodeText(chunk []byte) string {
	d.pending = append(d.pending, chunk...)

	var out strings.Builder
	dst := make([]byte, 4096)
	for len(d.pending) > 0 {
		nDst, nSrc, err := d.dec.Transform(dst, d.pending, false)
		out.Write(dst[:nDst])
		d.pending = d.pending[nSrc:]
		switch err {
		case nil, transform.ErrShortSrc:
			// Anything left in pending is an incomplete tail; keep it.
			return out.String()
		case transform.ErrShortDst:
			continue
		default:
			d.logger.Warn().Err(err).Msg("dropping undecodable bytes")
			d.pending = nil
			return out.String()
		}
	}
	return out.String()
}

// parseLine turns one complete line into a Frame. Lines without the data
// prefix, bare-prefix lines, empty payloads and the stream-end sentinel
// produce no frame.
func (d *Decoder) parseLine(line string) (Frame, bool) {
	if !strings.HasPrefix(line, dataPrefix) {
		return Frame{}, false
	}
	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == "" || payload == doneSentinel {
		return Frame{}, false
	}
	f, err := ParseFrame([]byte(payload))
	if err != nil {
		d.logger.Warn().Err(err).Str("payload", truncateForLog(payload)).Msg("skipping malformed frame")
		return Frame{}, false
	}
	return f, true
}

// truncateForLog bounds logged payloads so one bad line cannot flood the log.
func truncateForLog(s string) string {
	const max = 256
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
