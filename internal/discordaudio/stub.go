//go:build !opus
// +build !opus

package discordaudio

import (
	"context"
	"fmt"
	"io"

	"github.com/bwmarrin/discordgo"

	"github.com/gita-voice-lab/internal/voice"
)

// This file provides the device API for builds without libopus. The real
// implementations are in microphone.go and speaker.go, built with the opus
// tag.

var errNoOpus = fmt.Errorf("%w: built without opus support", voice.ErrDeviceDenied)

type Microphone struct{}

func NewMicrophone(*discordgo.VoiceConnection, *SSRCMap, *Target) *Microphone {
	return &Microphone{}
}

func (*Microphone) Acquire(context.Context) error             { return errNoOpus }
func (*Microphone) ReadChunk(context.Context) ([]byte, error) { return nil, io.EOF }
func (*Microphone) Release() error                            { return nil }
func (*Microphone) Format() (int, int)                        { return SampleRate, RecvChannels }

type Speaker struct {
	voice.Base64Speaker
}

func NewSpeaker(*discordgo.VoiceConnection) *Speaker { return &Speaker{} }

func (*Speaker) Play(context.Context, []byte) error { return errNoOpus }
func (*Speaker) Stop() error                        { return nil }
