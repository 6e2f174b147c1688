package discordaudio

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/gita-voice-lab/internal/voice"
)

func TestAcceptOnlyTargetUser(t *testing.T) {
	m := NewSSRCMap()
	m.HandleSpeakingUpdate(nil, &discordgo.VoiceSpeakingUpdate{UserID: "u1", SSRC: 11})
	m.HandleSpeakingUpdate(nil, &discordgo.VoiceSpeakingUpdate{UserID: "u2", SSRC: 22})
	m.HandleSpeakingUpdate(nil, &discordgo.VoiceSpeakingUpdate{SSRC: 33})

	var target Target
	if accept(m, &target, 11) {
		t.Fatalf("no target selected; packet must be dropped")
	}
	target.Set("u1")
	if !accept(m, &target, 11) {
		t.Fatalf("target packet rejected")
	}
	if accept(m, &target, 22) || accept(m, &target, 33) || accept(m, &target, 44) {
		t.Fatalf("non-target packet accepted")
	}
	if got := m.User(33); got != "" {
		t.Fatalf("update without user must be ignored, got %q", got)
	}
}

func TestPrepareWAVUpsamplesToDiscordFormat(t *testing.T) {
	// 10 ms of 16 kHz mono.
	pcm := make([]int16, 160)
	for i := range pcm {
		pcm[i] = 1000
	}
	wav := voice.BuildWAV(voice.SamplesToBytes(pcm), 16000, 1, 16)

	out, err := PrepareWAV(wav)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if want := 480 * SendChannels; len(out) != want {
		t.Fatalf("samples: want=%d got=%d", want, len(out))
	}
	if out[0] != 1000 || out[1] != 1000 {
		t.Fatalf("mono must be copied to both channels: %v", out[:2])
	}
}

func TestPrepareWAVRejectsGarbage(t *testing.T) {
	if _, err := PrepareWAV([]byte("not a wav")); !errors.Is(err, voice.ErrNotWAV) {
		t.Fatalf("expected ErrNotWAV, got %v", err)
	}
}

func TestSplitFramesPadsLastFrame(t *testing.T) {
	samples := make([]int16, FrameSize*SendChannels+10)
	for i := range samples {
		samples[i] = 7
	}
	frames := SplitFrames(samples, SendChannels)
	if len(frames) != 2 {
		t.Fatalf("frames: want=2 got=%d", len(frames))
	}
	last := frames[1]
	if len(last) != FrameSize*SendChannels {
		t.Fatalf("last frame size: %d", len(last))
	}
	if last[9] != 7 || last[10] != 0 {
		t.Fatalf("last frame must be zero padded: %v", last[:12])
	}
	if SplitFrames(nil, SendChannels) != nil {
		t.Fatalf("no samples, no frames")
	}
}

func TestDevicesWithoutConnectionRefuse(t *testing.T) {
	var target Target
	target.Set("u1")
	mic := NewMicrophone(nil, NewSSRCMap(), &target)
	if err := mic.Acquire(context.Background()); !errors.Is(err, voice.ErrDeviceDenied) {
		t.Fatalf("expected ErrDeviceDenied, got %v", err)
	}
	spk := NewSpeaker(nil)
	if err := spk.Play(context.Background(), voice.BuildWAV(make([]byte, 64), 16000, 1, 16)); !errors.Is(err, voice.ErrDeviceDenied) {
		t.Fatalf("expected ErrDeviceDenied, got %v", err)
	}
	if rate, ch := mic.Format(); rate != SampleRate || ch != RecvChannels {
		t.Fatalf("unexpected format %d/%d", rate, ch)
	}
}

func TestNoopResolver(t *testing.T) {
	var r NameResolver = NoopResolver{}
	if r.UserName("x") != "" || r.ChannelName("y") != "" {
		t.Fatalf("noop resolver must return empty names")
	}
}
