package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/eleven-am/voice-client/internal/shared"
)

const uploadSampleRate = 16000

// Thresholds are the minimum acceptable clip sizes in bytes, per platform.
// Mobile is deliberately looser: short utterances are common and valid
// there. This is tunable policy, not a physical limit.
type Thresholds struct {
	Desktop int
	Mobile  int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Desktop: 4096,
		Mobile:  1024,
	}
}

func (t Thresholds) For(p shared.Platform) int {
	if p == shared.PlatformMobile {
		return t.Mobile
	}
	return t.Desktop
}

// Assemble joins the accumulated PCM16LE fragments into a single WAV clip,
// resampling to the 16 kHz upload rate when the device delivered a
// different rate.
func Assemble(fragments [][]byte, deviceRate int) []byte {
	total := 0
	for _, f := range fragments {
		total += len(f)
	}
	if total == 0 {
		return nil
	}

	pcm := make([]byte, 0, total)
	for _, f := range fragments {
		pcm = append(pcm, f...)
	}

	if deviceRate > 0 && deviceRate != uploadSampleRate {
		samples := PCMBytesToInt16(pcm)
		pcm = Int16ToPCMBytes(ResampleInt16(samples, deviceRate, uploadSampleRate))
	}

	return wrapWAV(pcm, uploadSampleRate)
}

// Validate rejects empty or too-short clips before any upload is attempted.
func Validate(clip []byte, platform shared.Platform, th Thresholds) error {
	if len(clip) == 0 {
		return fmt.Errorf("empty clip: %w", shared.ErrRecordingTooShort)
	}
	if min := th.For(platform); len(clip) < min {
		return fmt.Errorf("clip %d bytes below %s minimum %d: %w",
			len(clip), platform, min, shared.ErrRecordingTooShort)
	}
	return nil
}

// wrapWAV prefixes mono PCM16LE data with a canonical 44-byte RIFF header.
func wrapWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, 44+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}
