package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned when neither the magic bytes nor the
// declared content type identify a decodable container.
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// container identifies a decodable input format.
type container int

const (
	containerUnknown container = iota
	containerWAV
	containerMP3
	containerOgg
)

// Decode turns container bytes into float64 mono samples at the container's
// native rate. The container is selected by magic bytes first and the
// declared content type second; application/octet-stream is interpreted as
// WAV.
func Decode(data []byte, contentType string) (samples []float64, rate int, err error) {
	switch sniff(data, contentType) {
	case containerWAV:
		return decodeWAV(data)
	case containerMP3:
		return decodeMP3(data)
	case containerOgg:
		return decodeOgg(data)
	default:
		return nil, 0, fmt.Errorf("%w: content type %q", ErrUnsupportedFormat, contentType)
	}
}

// sniff picks the container from magic bytes, falling back to contentType.
func sniff(data []byte, contentType string) container {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return containerWAV
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("OggS")):
		return containerOgg
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return containerMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return containerMP3
	}

	ct := contentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	switch strings.TrimSpace(strings.ToLower(ct)) {
	case "audio/wav", "audio/x-wav", "audio/wave", "application/octet-stream", "":
		return containerWAV
	case "audio/mpeg", "audio/mp3":
		return containerMP3
	case "audio/ogg", "audio/webm", "application/ogg":
		return containerOgg
	}
	return containerUnknown
}

// decodeWAV decodes a RIFF/WAVE container of any PCM bit depth, downmixing
// to mono by channel averaging.
func decodeWAV(data []byte) ([]float64, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("audio: decode wav: empty PCM data")
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	scale := 32768.0
	if buf.SourceBitDepth > 1 && buf.SourceBitDepth <= 32 {
		scale = float64(int64(1) << (buf.SourceBitDepth - 1))
	}

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(buf.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float64(channels)
	}
	return samples, buf.Format.SampleRate, nil
}

// decodeMP3 decodes an MPEG stream. go-mp3 always emits 16-bit stereo at
// the stream rate; the two channels are averaged.
func decodeMP3(data []byte) ([]float64, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode mp3: read: %w", err)
	}

	// 4 bytes per stereo frame: L16 + R16, little-endian.
	frames := len(raw) / 4
	samples := make([]float64, frames)
	for i := range frames {
		l := int16(raw[i*4]) | int16(raw[i*4+1])<<8
		r := int16(raw[i*4+2]) | int16(raw[i*4+3])<<8
		samples[i] = (float64(l) + float64(r)) / 2 / 32768
	}
	return samples, dec.SampleRate(), nil
}
