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

// Microphone captures the target user's audio from a voice connection.
// OpusRecv is drained continuously; packets are only kept while acquired.
type Microphone struct {
	vc     *discordgo.VoiceConnection
	ssrcs  *SSRCMap
	target *Target

	mu      sync.Mutex
	active  bool
	dec     *opus.Decoder
	packets chan *discordgo.Packet
	pump    sync.Once
}

func NewMicrophone(vc *discordgo.VoiceConnection, ssrcs *SSRCMap, target *Target) *Microphone {
	return &Microphone{
		vc:      vc,
		ssrcs:   ssrcs,
		target:  target,
		packets: make(chan *discordgo.Packet, 256),
	}
}

// Format implements voice.PCMFormat.
func (m *Microphone) Format() (int, int) { return SampleRate, RecvChannels }

func (m *Microphone) Acquire(ctx context.Context) error {
	if m.vc == nil || m.vc.OpusRecv == nil {
		return fmt.Errorf("%w: not connected to a voice channel", voice.ErrDeviceDenied)
	}
	if m.target.Get() == "" {
		return fmt.Errorf("%w: no user selected", voice.ErrDeviceDenied)
	}
	dec, err := opus.NewDecoder(SampleRate, RecvChannels)
	if err != nil {
		return fmt.Errorf("%w: opus decoder: %v", voice.ErrDeviceDenied, err)
	}

	m.mu.Lock()
	m.dec = dec
	m.active = true
	m.mu.Unlock()
	m.drain()
	m.pump.Do(func() { go m.receive() })
	logging.Debugw("discordaudio: microphone acquired", "user_id", m.target.Get())
	return nil
}

// receive forwards the target's packets while active. It exits when the
// voice connection closes OpusRecv.
func (m *Microphone) receive() {
	for pkt := range m.vc.OpusRecv {
		if pkt == nil {
			continue
		}
		m.mu.Lock()
		active := m.active
		m.mu.Unlock()
		if !active || !accept(m.ssrcs, m.target, pkt.SSRC) {
			continue
		}
		select {
		case m.packets <- pkt:
		default:
			logging.Warnw("dropping opus frame; queue full", "ssrc", pkt.SSRC)
		}
	}
}

func (m *Microphone) drain() {
	for {
		select {
		case <-m.packets:
		default:
			return
		}
	}
}

// ReadChunk returns the next decoded packet as PCM16LE mono. A packet that
// fails to decode yields an empty chunk.
func (m *Microphone) ReadChunk(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case pkt := <-m.packets:
		m.mu.Lock()
		dec := m.dec
		m.mu.Unlock()
		pcm := make([]int16, FrameSize*6*RecvChannels)
		n, err := dec.Decode(pkt.Opus, pcm)
		if err != nil {
			logging.Errorw("opus decode error", "ssrc", pkt.SSRC, "err", err)
			return nil, nil
		}
		return voice.SamplesToBytes(pcm[:n*RecvChannels]), nil
	}
}

func (m *Microphone) Release() error {
	m.mu.Lock()
	m.active = false
	m.mu.Unlock()
	m.drain()
	return nil
}
