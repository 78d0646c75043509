package audio

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/eleven-am/voice-client/internal/shared"
)

// fallbackSlabSize bounds peak allocation when the streaming strategy
// encodes very large clips.
const fallbackSlabSize = 32 * 1024

type encodeStrategy func(data []byte) (out string, err error)

// Encoder turns a binary clip into its text-safe transport form. One
// primary strategy and one fallback exist; the primary is selected once by
// a capability probe at construction, not per call. If the selected
// strategy fails at runtime the other is attempted once before the clip is
// declared unencodable.
type Encoder struct {
	primary  encodeStrategy
	fallback encodeStrategy
	log      *slog.Logger
}

func NewEncoder(log *slog.Logger) *Encoder {
	if log == nil {
		log = slog.Default()
	}

	e := &Encoder{
		primary:  encodeSinglePass,
		fallback: encodeStreaming,
		log:      log,
	}

	if _, err := e.primary([]byte{0x00, 0x01, 0x02}); err != nil {
		log.Warn("single-pass encoder failed probe, using streaming strategy", "error", err)
		e.primary, e.fallback = e.fallback, e.primary
	}

	return e
}

func (e *Encoder) Encode(clip []byte) (string, error) {
	out, err := e.primary(clip)
	if err == nil {
		return out, nil
	}

	e.log.Warn("primary clip encoding failed, falling back", "error", err, "clip_bytes", len(clip))

	out, fbErr := e.fallback(clip)
	if fbErr != nil {
		return "", fmt.Errorf("both encoding paths failed (%v, %v): %w", err, fbErr, shared.ErrEncodingFailed)
	}
	return out, nil
}

// encodeSinglePass encodes the whole clip in one allocation. Recovers from
// allocation panics on very large payloads so the streaming path can take
// over.
func encodeSinglePass(data []byte) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("single-pass encode: %v", r)
		}
	}()
	return base64.StdEncoding.EncodeToString(data), nil
}

// encodeStreaming writes the clip through a base64 stream in fixed slabs.
func encodeStreaming(data []byte) (string, error) {
	var buf bytes.Buffer
	buf.Grow(base64.StdEncoding.EncodedLen(len(data)))

	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	for off := 0; off < len(data); off += fallbackSlabSize {
		end := off + fallbackSlabSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := enc.Write(data[off:end]); err != nil {
			return "", fmt.Errorf("streaming encode: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("streaming encode close: %w", err)
	}
	return buf.String(), nil
}
