package voice

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// BuildWAV creates a RIFF/WAVE header for PCM and returns header + data.
// sampleRate in Hz, channels and bitsPerSample (commonly 16) populate the
// fmt chunk.
func BuildWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)
	dataLen := uint32(len(pcm))
	riffSize := uint32(4 + (8 + 16) + (8 + dataLen))

	buf := &bytes.Buffer{}
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)
	return buf.Bytes()
}

// WAV is a parsed PCM WAVE file.
type WAV struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	PCM           []byte
}

var ErrNotWAV = errors.New("not a PCM WAV file")

// ParseWAV reads the fmt and data chunks of a PCM WAVE file, skipping any
// other chunks. A data chunk whose declared size overruns the buffer is
// truncated to what is present, as streaming encoders often write 0 or
// 0xFFFFFFFF there.
func ParseWAV(b []byte) (*WAV, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}
	w := &WAV{}
	haveFmt := false
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(b) {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			if format := binary.LittleEndian.Uint16(b[body:]); format != 1 && format != 0xFFFE {
				return nil, fmt.Errorf("%w: format %d", ErrNotWAV, format)
			}
			w.Channels = int(binary.LittleEndian.Uint16(b[body+2:]))
			w.SampleRate = int(binary.LittleEndian.Uint32(b[body+4:]))
			w.BitsPerSample = int(binary.LittleEndian.Uint16(b[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			end := body + size
			if size < 0 || end > len(b) || end < body {
				end = len(b)
			}
			w.PCM = b[body:end]
			if w.Channels == 0 || w.SampleRate == 0 {
				return nil, fmt.Errorf("%w: zero channels or rate", ErrNotWAV)
			}
			return w, nil
		}
		off = body + size
		if size%2 == 1 {
			off++
		}
	}
	return nil, fmt.Errorf("%w: no data chunk", ErrNotWAV)
}

// Samples returns the PCM as 16-bit samples. Only 16-bit audio is
// supported.
func (w *WAV) Samples() ([]int16, error) {
	if w.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bits per sample %d", w.BitsPerSample)
	}
	return BytesToSamples(w.PCM), nil
}

// BytesToSamples decodes little-endian PCM16. A trailing odd byte is
// dropped.
func BytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

// SamplesToBytes encodes samples as little-endian PCM16.
func SamplesToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

// Resample converts interleaved samples between rates and channel counts
// using linear interpolation. Mono is duplicated to every output channel;
// multi-channel input is averaged down to mono first when the counts differ.
func Resample(in []int16, inRate, inChannels, outRate, outChannels int) []int16 {
	if inRate <= 0 || inChannels <= 0 || outRate <= 0 || outChannels <= 0 || len(in) == 0 {
		return nil
	}
	frames := len(in) / inChannels
	if frames == 0 {
		return nil
	}

	var mono []float64
	sameLayout := inChannels == outChannels
	if !sameLayout {
		mono = make([]float64, frames)
		for f := 0; f < frames; f++ {
			var sum int
			for c := 0; c < inChannels; c++ {
				sum += int(in[f*inChannels+c])
			}
			mono[f] = float64(sum) / float64(inChannels)
		}
	}

	outFrames := int(int64(frames) * int64(outRate) / int64(inRate))
	if outFrames == 0 {
		outFrames = 1
	}
	out := make([]int16, outFrames*outChannels)
	step := float64(inRate) / float64(outRate)
	for f := 0; f < outFrames; f++ {
		pos := float64(f) * step
		i := int(pos)
		if i >= frames-1 {
			i = frames - 1
		}
		frac := pos - float64(i)
		next := i + 1
		if next >= frames {
			next = frames - 1
			frac = 0
		}
		for c := 0; c < outChannels; c++ {
			var a, b float64
			if sameLayout {
				a, b = float64(in[i*inChannels+c]), float64(in[next*inChannels+c])
			} else {
				a, b = mono[i], mono[next]
			}
			out[f*outChannels+c] = clamp16(a + (b-a)*frac)
		}
	}
	return out
}

func clamp16(v float64) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}
