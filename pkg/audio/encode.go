package audio

import (
	"bytes"
	"encoding/binary"
)

// WrapWAV serializes a buffer into a minimal PCM16 RIFF/WAVE container.
// Streaming sessions use it to feed utterance segments back through the
// standard pipeline entry points.
func WrapWAV(buf *Buffer) []byte {
	var out bytes.Buffer
	dataLen := uint32(len(buf.PCM))
	channels := uint16(buf.Channels)
	if channels == 0 {
		channels = 1
	}
	rate := uint32(buf.SampleRate)

	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, 36+dataLen)
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	binary.Write(&out, binary.LittleEndian, uint32(16))
	binary.Write(&out, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&out, binary.LittleEndian, channels)
	binary.Write(&out, binary.LittleEndian, rate)
	binary.Write(&out, binary.LittleEndian, rate*uint32(channels)*2)
	binary.Write(&out, binary.LittleEndian, channels*2)
	binary.Write(&out, binary.LittleEndian, uint16(16))
	out.WriteString("data")
	binary.Write(&out, binary.LittleEndian, dataLen)
	out.Write(buf.PCM)
	return out.Bytes()
}
