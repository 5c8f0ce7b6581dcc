package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"
)

// opusMaxFrame is the largest Opus frame in samples per channel (120 ms at
// 48 kHz).
const opusMaxFrame = 5760

// opusRate is the rate Opus decoders always emit.
const opusRate = 48000

// decodeOgg decodes an Ogg container holding an Opus stream. The page layer
// is parsed directly; packets go through gopus. Downmix is by channel
// averaging.
func decodeOgg(data []byte) ([]float64, int, error) {
	packets, err := oggPackets(data)
	if err != nil {
		return nil, 0, err
	}
	if len(packets) == 0 {
		return nil, 0, fmt.Errorf("audio: decode ogg: no packets")
	}
	if len(packets[0]) < 19 || !bytes.HasPrefix(packets[0], []byte("OpusHead")) {
		return nil, 0, fmt.Errorf("audio: decode ogg: not an Opus stream")
	}

	channels := int(packets[0][9])
	if channels < 1 || channels > 2 {
		return nil, 0, fmt.Errorf("audio: decode ogg: unsupported channel count %d", channels)
	}
	preSkip := int(binary.LittleEndian.Uint16(packets[0][10:12]))

	dec, err := gopus.NewDecoder(opusRate, channels)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode ogg: create opus decoder: %w", err)
	}

	var pcm []int16
	for _, packet := range packets[1:] {
		// Skip the OpusTags comment packet.
		if bytes.HasPrefix(packet, []byte("OpusTags")) {
			continue
		}
		frame, err := dec.Decode(packet, opusMaxFrame, false)
		if err != nil {
			return nil, 0, fmt.Errorf("audio: decode ogg: opus frame: %w", err)
		}
		pcm = append(pcm, frame...)
	}

	frames := len(pcm) / channels
	if preSkip > frames {
		preSkip = frames
	}
	samples := make([]float64, 0, frames-preSkip)
	for i := preSkip; i < frames; i++ {
		var sum float64
		for c := range channels {
			sum += float64(pcm[i*channels+c]) / 32768
		}
		samples = append(samples, sum/float64(channels))
	}
	return samples, opusRate, nil
}

// oggPackets walks Ogg pages and reassembles the logical packet stream.
// Lacing values below 255 terminate a packet; the continuation flag carries
// partial packets across page boundaries.
func oggPackets(data []byte) ([][]byte, error) {
	var packets [][]byte
	var pending []byte

	for off := 0; off < len(data); {
		if len(data)-off < 27 {
			break
		}
		if !bytes.Equal(data[off:off+4], []byte("OggS")) {
			return nil, fmt.Errorf("audio: decode ogg: bad page capture at offset %d", off)
		}
		if data[off+4] != 0 {
			return nil, fmt.Errorf("audio: decode ogg: unsupported page version %d", data[off+4])
		}
		nsegs := int(data[off+26])
		headerEnd := off + 27 + nsegs
		if headerEnd > len(data) {
			return nil, fmt.Errorf("audio: decode ogg: truncated segment table")
		}

		body := headerEnd
		for s := range nsegs {
			lacing := int(data[off+27+s])
			if body+lacing > len(data) {
				return nil, fmt.Errorf("audio: decode ogg: truncated page body")
			}
			pending = append(pending, data[body:body+lacing]...)
			body += lacing
			if lacing < 255 {
				packets = append(packets, pending)
				pending = nil
			}
		}
		off = body
	}
	return packets, nil
}
