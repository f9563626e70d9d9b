package speech

import (
	"encoding/binary"
	"fmt"
)

// ParseWAV extracts the PCM16LE mono samples and sample rate from a RIFF/WAVE
// payload. Only uncompressed 16-bit mono is supported; that is what the
// backend voice and the local engine both produce.
func ParseWAV(data []byte) ([]byte, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE payload")
	}
	var (
		sampleRate int
		pcm        []byte
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			channels := binary.LittleEndian.Uint16(data[body+2 : body+4])
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != 1 || channels != 1 || bits != 16 {
				return nil, 0, fmt.Errorf("unsupported wav format=%d channels=%d bits=%d", format, channels, bits)
			}
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
		case "data":
			pcm = data[body : body+size]
		}
		// chunks are word-aligned
		if size%2 == 1 {
			size++
		}
		off = body + size
	}
	if sampleRate == 0 || pcm == nil {
		return nil, 0, fmt.Errorf("wav missing fmt or data chunk")
	}
	return pcm, sampleRate, nil
}

// Resample converts PCM16LE mono between sample rates with linear
// interpolation. Quality is fine for speech; the premium path never needs it.
func Resample(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return pcm
	}
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}
	src := make([]int16, n)
	for i := 0; i < n; i++ {
		src[i] = int16(binary.LittleEndian.Uint16(pcm[2*i : 2*i+2]))
	}
	outN := n * to / from
	out := make([]byte, outN*2)
	for i := 0; i < outN; i++ {
		pos := float64(i) * float64(from) / float64(to)
		j := int(pos)
		frac := pos - float64(j)
		a := float64(src[j])
		b := a
		if j+1 < n {
			b = float64(src[j+1])
		}
		v := int16(a + (b-a)*frac)
		binary.LittleEndian.PutUint16(out[2*i:2*i+2], uint16(v))
	}
	return out
}
