//go:build opus
// +build opus

package discordaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/hraban/opus"

	"github.com/gita-voice-lab/internal/logging"
	"github.com/gita-voice-lab/internal/voice"
)

// Speaker plays WAV audio into the voice channel.
type Speaker struct {
	voice.Base64Speaker
	vc *discordgo.VoiceConnection

	mu   sync.Mutex
	stop chan struct{}
}

func NewSpeaker(vc *discordgo.VoiceConnection) *Speaker {
	return &Speaker{vc: vc}
}

// Play encodes audio to Opus and sends it frame by frame. discordgo paces
// OpusSend at 20 ms per frame, so Play returns roughly when playback ends.
func (s *Speaker) Play(ctx context.Context, audio []byte) error {
	if s.vc == nil || s.vc.OpusSend == nil {
		return fmt.Errorf("%w: not connected to a voice channel", voice.ErrDeviceDenied)
	}
	samples, err := PrepareWAV(audio)
	if err != nil {
		return err
	}
	enc, err := opus.NewEncoder(SampleRate, SendChannels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("opus encoder: %w", err)
	}

	stop := make(chan struct{})
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()

	if err := s.vc.Speaking(true); err != nil {
		logging.Warnw("discordaudio: speaking(true) failed", "err", err)
	}
	defer func() {
		if err := s.vc.Speaking(false); err != nil {
			logging.Debugw("discordaudio: speaking(false) failed", "err", err)
		}
	}()

	buf := make([]byte, 4000)
	for _, frame := range SplitFrames(samples, SendChannels) {
		n, err := enc.Encode(frame, buf)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		pkt := append([]byte(nil), buf[:n]...)
		select {
		case s.vc.OpusSend <- pkt:
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Speaker) Stop() error {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()
	return nil
}
