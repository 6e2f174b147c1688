package discordaudio

import (
	"fmt"

	"github.com/gita-voice-lab/internal/voice"
)

// Discord voice is 48 kHz Opus in 20 ms frames.
const (
	SampleRate   = 48000
	SendChannels = 2
	RecvChannels = 1
	FrameSize    = 960
)

// PrepareWAV converts a PCM16 WAV file to 48 kHz stereo samples ready for
// Opus encoding.
func PrepareWAV(b []byte) ([]int16, error) {
	w, err := voice.ParseWAV(b)
	if err != nil {
		return nil, err
	}
	samples, err := w.Samples()
	if err != nil {
		return nil, err
	}
	out := voice.Resample(samples, w.SampleRate, w.Channels, SampleRate, SendChannels)
	if len(out) == 0 {
		return nil, fmt.Errorf("wav contains no audio")
	}
	return out, nil
}

// SplitFrames cuts interleaved samples into frames of FrameSize samples per
// channel, zero-padding the last one.
func SplitFrames(samples []int16, channels int) [][]int16 {
	size := FrameSize * channels
	var frames [][]int16
	for off := 0; off < len(samples); off += size {
		frame := make([]int16, size)
		copy(frame, samples[off:])
		frames = append(frames, frame)
	}
	return frames
}
