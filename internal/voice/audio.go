package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gita-voice-lab/internal/logging"
)

// Microphone is a capture device. ReadChunk blocks until PCM16LE audio is
// available and returns io.EOF when the device has no more to give.
type Microphone interface {
	Acquire(ctx context.Context) error
	ReadChunk(ctx context.Context) ([]byte, error)
	Release() error
}

// PCMFormat is implemented by microphones whose PCM is not 16 kHz mono.
type PCMFormat interface {
	Format() (sampleRate, channels int)
}

// Speaker is a playback device. Play blocks until the audio finishes or
// Stop is called.
type Speaker interface {
	Decode(payload string) ([]byte, error)
	Play(ctx context.Context, audio []byte) error
	Stop() error
}

const (
	defaultSampleRate = 16000
	defaultChannels   = 1
)

// Capture is the finalized result of one recording.
type Capture struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Empty reports whether nothing was captured.
func (c Capture) Empty() bool { return len(c.PCM) == 0 }

// WAV wraps the PCM in a 16-bit WAVE container.
func (c Capture) WAV() []byte { return BuildWAV(c.PCM, c.SampleRate, c.Channels, 16) }

// Recorder scopes one use of a Microphone: Start acquires it and begins
// reading chunks in the background; Finish or Abort stop the loop and
// release the device. Release happens exactly once on every path.
type Recorder struct {
	mic Microphone

	mu      sync.Mutex
	buf     bytes.Buffer
	cancel  context.CancelFunc
	done    chan struct{}
	release sync.Once
}

func NewRecorder(mic Microphone) *Recorder {
	return &Recorder{mic: mic}
}

// Start acquires the microphone. A refusal is returned wrapped in
// ErrDeviceDenied and leaves nothing to release.
func (r *Recorder) Start(ctx context.Context) error {
	if r.mic == nil {
		return fmt.Errorf("%w: no microphone configured", ErrDeviceDenied)
	}
	if err := r.mic.Acquire(ctx); err != nil {
		if errors.Is(err, ErrDeviceDenied) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDeviceDenied, err)
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(loopCtx)
	return nil
}

func (r *Recorder) loop(ctx context.Context) {
	defer close(r.done)
	for {
		chunk, err := r.mic.ReadChunk(ctx)
		if len(chunk) > 0 {
			r.mu.Lock()
			r.buf.Write(chunk)
			r.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logging.Warnw("recorder: read failed; keeping audio captured so far", "err", err)
			}
			return
		}
	}
}

// Finish stops capturing, releases the microphone and returns what was
// recorded.
func (r *Recorder) Finish() Capture {
	r.stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	rate, channels := defaultSampleRate, defaultChannels
	if f, ok := r.mic.(PCMFormat); ok {
		rate, channels = f.Format()
	}
	pcm := make([]byte, r.buf.Len())
	copy(pcm, r.buf.Bytes())
	return Capture{PCM: pcm, SampleRate: rate, Channels: channels}
}

// Abort stops capturing and releases the microphone, discarding the audio.
func (r *Recorder) Abort() {
	r.stop()
	r.mu.Lock()
	r.buf.Reset()
	r.mu.Unlock()
}

func (r *Recorder) stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	r.release.Do(func() {
		if r.mic == nil {
			return
		}
		if err := r.mic.Release(); err != nil {
			logging.Warnw("recorder: microphone release failed", "err", err)
		}
	})
}

// Player scopes one use of a Speaker: Load decodes the payload, Start
// plays it in the background, and the speaker is stopped exactly once
// whether playback ends naturally or through Stop.
type Player struct {
	spk   Speaker
	audio []byte

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopped  bool
	done     chan struct{}
	doneOnce sync.Once
	once     sync.Once
}

func NewPlayer(spk Speaker) *Player {
	return &Player{spk: spk, done: make(chan struct{})}
}

// Load decodes a base64 payload through the speaker.
func (p *Player) Load(payload string) error {
	if p.spk == nil {
		return fmt.Errorf("%w: no speaker configured", ErrDeviceDenied)
	}
	if strings.TrimSpace(payload) == "" {
		return errEmptyAudio
	}
	audio, err := p.spk.Decode(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", errUndecodableAudio, err)
	}
	if len(audio) == 0 {
		return errEmptyAudio
	}
	p.audio = audio
	return nil
}

// Start begins playback. onEnd is called once with Play's result after the
// speaker has been released; it is nil for a natural end and for Stop.
// After Stop, Start does nothing.
func (p *Player) Start(ctx context.Context, onEnd func(error)) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	playCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		defer p.finish()
		err := p.spk.Play(playCtx, p.audio)
		stopped := playCtx.Err() != nil
		p.releaseSpeaker()
		cancel()
		if stopped {
			err = nil
		}
		if onEnd != nil {
			onEnd(err)
		}
	}()
}

// Stop ends playback early and waits for the speaker to be released. It
// also releases the speaker when playback never started.
func (p *Player) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel == nil {
		p.releaseSpeaker()
		p.finish()
		return
	}
	cancel()
	p.releaseSpeaker()
	<-p.done
}

func (p *Player) finish() {
	p.doneOnce.Do(func() { close(p.done) })
}

// Done is closed when playback has ended and the speaker is released.
func (p *Player) Done() <-chan struct{} { return p.done }

func (p *Player) releaseSpeaker() {
	p.once.Do(func() {
		if err := p.spk.Stop(); err != nil {
			logging.Warnw("player: speaker stop failed", "err", err)
		}
	})
}

// Base64Speaker decodes standard base64 payloads; embed it to supply Decode.
type Base64Speaker struct{}

func (Base64Speaker) Decode(payload string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
}
