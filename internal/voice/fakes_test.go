package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gita-voice-lab/internal/gateway"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

// fakeMic yields chunks, then blocks like a live device until the reader
// gives up. drained is closed once every chunk has been consumed.
type fakeMic struct {
	mu         sync.Mutex
	chunks     [][]byte
	acquireErr error
	gate       chan struct{} // when set, Acquire waits for it
	eof        bool
	acquired   int
	released   int
	drained    chan struct{}
	drainOnce  sync.Once
}

func newFakeMic(chunks ...[]byte) *fakeMic {
	return &fakeMic{chunks: chunks, drained: make(chan struct{})}
}

func (m *fakeMic) Acquire(context.Context) error {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquireErr != nil {
		return m.acquireErr
	}
	m.acquired++
	return nil
}

func (m *fakeMic) ReadChunk(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	if len(m.chunks) > 0 {
		c := m.chunks[0]
		m.chunks = m.chunks[1:]
		m.mu.Unlock()
		return c, nil
	}
	eof := m.eof
	drained, once := m.drained, &m.drainOnce
	once.Do(func() { close(drained) })
	m.mu.Unlock()
	if eof {
		return nil, io.EOF
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *fakeMic) Release() error {
	m.mu.Lock()
	m.released++
	m.mu.Unlock()
	return nil
}

func (m *fakeMic) counts() (acquired, released int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired, m.released
}

// fakeSpeaker plays until finish is closed or the context is cancelled.
type fakeSpeaker struct {
	Base64Speaker
	finish  chan struct{}
	playErr error

	mu      sync.Mutex
	played  [][]byte
	stopped int
	playing int
}

func newFakeSpeaker() *fakeSpeaker {
	return &fakeSpeaker{finish: make(chan struct{})}
}

func (s *fakeSpeaker) Play(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	s.played = append(s.played, audio)
	s.playing++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.playing--
		s.mu.Unlock()
	}()
	if s.playErr != nil {
		return s.playErr
	}
	select {
	case <-s.finish:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeSpeaker) Stop() error {
	s.mu.Lock()
	s.stopped++
	s.mu.Unlock()
	return nil
}

func (s *fakeSpeaker) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *fakeSpeaker) plays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.played)
}

func (s *fakeSpeaker) stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeSTT struct {
	mu     sync.Mutex
	text   string
	err    error
	reqs   []gateway.STTRequest
	tokens []string
}

func (f *fakeSTT) Transcribe(_ context.Context, token string, req gateway.STTRequest) (*gateway.STTResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.STTResult{Transcript: f.text}, nil
}

func (f *fakeSTT) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeDialogue struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	reqs    []gateway.DialogueRequest
}

func (f *fakeDialogue) Converse(_ context.Context, _ string, req gateway.DialogueRequest) (*gateway.DialogueResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.reqs)
	f.reqs = append(f.reqs, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	} else if len(f.replies) > 0 {
		reply = f.replies[len(f.replies)-1]
	}
	return &gateway.DialogueResult{Reply: reply}, nil
}

func (f *fakeDialogue) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeTTS struct {
	mu    sync.Mutex
	audio string
	err   error
	reqs  []gateway.TTSRequest
}

func (f *fakeTTS) Synthesize(_ context.Context, _ string, req gateway.TTSRequest) (*gateway.TTSResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.TTSResult{Audio: f.audio}, nil
}

func (f *fakeTTS) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

var replyAudio = BuildWAV(make([]byte, 320), 16000, 1, 16)

type harness struct {
	mic *fakeMic
	spk *fakeSpeaker
	stt *fakeSTT
	dlg *fakeDialogue
	tts *fakeTTS
	o   *Orchestrator
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		mic: newFakeMic([]byte{1, 0, 2, 0}, []byte{3, 0, 4, 0}),
		spk: newFakeSpeaker(),
		stt: &fakeSTT{text: "What is dharma?"},
		dlg: &fakeDialogue{replies: []string{"Dharma is..."}},
		tts: &fakeTTS{audio: base64.StdEncoding.EncodeToString(replyAudio)},
	}
	h.o = New(Deps{
		Tokens:     staticToken("tok"),
		STT:        h.stt,
		Dialogue:   h.dlg,
		TTS:        h.tts,
		Microphone: h.mic,
		Speaker:    h.spk,
	}, opts...)
	t.Cleanup(h.o.Close)
	return h
}

// speak records one turn: start, wait for every chunk, stop.
func (h *harness) speak(t *testing.T) error {
	t.Helper()
	if err := h.o.StartCapture(context.Background()); err != nil {
		t.Fatalf("start capture: %v", err)
	}
	h.mic.mu.Lock()
	drained := h.mic.drained
	h.mic.mu.Unlock()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatalf("microphone was never drained")
	}
	return h.o.StopCapture(context.Background())
}

// waitFor polls until the orchestrator reaches want.
func waitFor(t *testing.T, o *Orchestrator, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state: want=%s got=%s", want, o.State())
}

var errUpstream = errors.New("upstream down")

// refill queues chunks for the next recording.
func (m *fakeMic) refill(chunks ...[]byte) {
	m.mu.Lock()
	m.chunks = chunks
	m.drained = make(chan struct{})
	m.drainOnce = sync.Once{}
	m.mu.Unlock()
}
