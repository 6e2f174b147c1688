package voice

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gita-voice-lab/internal/convo"
	"github.com/gita-voice-lab/internal/gateway"
)

func TestEndToEndTurn(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var states []State
	h.o.Subscribe(func(s Snapshot) {
		mu.Lock()
		if len(states) == 0 || states[len(states)-1] != s.State {
			states = append(states, s.State)
		}
		mu.Unlock()
	})

	if err := h.speak(t); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if got := h.o.State(); got != Speaking {
		t.Fatalf("state after processing: want=speaking got=%s", got)
	}
	close(h.spk.finish)
	waitFor(t, h.o, Idle)

	want := convo.Transcript{convo.UserTurn("What is dharma?"), convo.AssistantTurn("Dharma is...")}
	if got := h.o.Transcript(); !reflect.DeepEqual(got, want) {
		t.Fatalf("transcript: want=%+v got=%+v", want, got)
	}

	mu.Lock()
	wantStates := []State{Recording, Processing, Speaking, Idle}
	if !reflect.DeepEqual(states, wantStates) {
		t.Fatalf("state sequence: want=%v got=%v", wantStates, states)
	}
	mu.Unlock()

	// the audio sent to STT is the captured PCM in a WAV container
	req := h.stt.reqs[0]
	w, err := ParseWAV(req.Audio)
	if err != nil {
		t.Fatalf("stt audio is not WAV: %v", err)
	}
	if !bytes.Equal(w.PCM, []byte{1, 0, 2, 0, 3, 0, 4, 0}) || w.SampleRate != 16000 {
		t.Fatalf("unexpected captured audio: rate=%d pcm=%v", w.SampleRate, w.PCM)
	}
	if h.stt.tokens[0] != "tok" {
		t.Fatalf("token not forwarded: %q", h.stt.tokens[0])
	}
	if acq, rel := h.mic.counts(); acq != 1 || rel != 1 {
		t.Fatalf("microphone acquired=%d released=%d", acq, rel)
	}
	if !bytes.Equal(h.spk.played[0], replyAudio) {
		t.Fatalf("speaker did not receive decoded reply audio")
	}
	if h.spk.stops() != 1 {
		t.Fatalf("speaker released %d times", h.spk.stops())
	}
	if h.o.LastError() != nil {
		t.Fatalf("unexpected error: %v", h.o.LastError())
	}
}

func TestDialogueRequestCarriesPriorTurnsInOrder(t *testing.T) {
	prior := gateway.ParseExchanges([]string{"Human: X\nAI: Y"})
	h := newHarness(t, WithTranscript(prior))
	h.stt.text = "Z"

	if err := h.speak(t); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	req := h.dlg.reqs[0]
	wantHistory := convo.Transcript{convo.UserTurn("X"), convo.AssistantTurn("Y")}
	if !reflect.DeepEqual(req.History, wantHistory) || req.Message != "Z" {
		t.Fatalf("dialogue request: history=%+v message=%q", req.History, req.Message)
	}
}

func TestTranscriptionFailureSkipsLaterStages(t *testing.T) {
	h := newHarness(t)
	h.stt.err = &gateway.Error{Op: "speech-to-text", Status: http.StatusBadGateway, Body: `{"error":"sarvam down"}`}

	err := h.speak(t)
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed, got %v", err)
	}
	var ge *gateway.Error
	if !errors.As(err, &ge) || ge.Status != http.StatusBadGateway {
		t.Fatalf("underlying gateway error not reachable: %v", err)
	}
	if h.dlg.calls() != 0 || h.tts.calls() != 0 {
		t.Fatalf("later stages ran: dialogue=%d tts=%d", h.dlg.calls(), h.tts.calls())
	}
	if h.o.State() != Errored || len(h.o.Transcript()) != 0 {
		t.Fatalf("state=%s transcript=%+v", h.o.State(), h.o.Transcript())
	}
	if msg := h.o.LastError().Message(); msg != "Speech recognition failed" {
		t.Fatalf("unexpected message: %q", msg)
	}
	if _, rel := h.mic.counts(); rel != 1 {
		t.Fatalf("microphone not released after failure")
	}
}

func TestWhitespaceTranscriptIsEmpty(t *testing.T) {
	h := newHarness(t)
	h.stt.text = "  \n "

	if err := h.speak(t); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
	if h.dlg.calls() != 0 {
		t.Fatalf("dialogue called for empty transcript")
	}
}

func TestZeroCaptureShortCircuits(t *testing.T) {
	h := newHarness(t)
	h.mic.refill()

	if err := h.speak(t); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
	if h.stt.calls() != 0 {
		t.Fatalf("stt called with no audio")
	}
	if h.o.State() != Errored {
		t.Fatalf("state: %s", h.o.State())
	}
}

func TestDialogueFailureKeepsUserTurnAndResendRetries(t *testing.T) {
	h := newHarness(t)
	h.dlg.errs = []error{errUpstream}

	err := h.speak(t)
	if !errors.Is(err, ErrDialogueFailed) || !errors.Is(err, errUpstream) {
		t.Fatalf("expected dialogue failure, got %v", err)
	}
	want := convo.Transcript{convo.UserTurn("What is dharma?")}
	if got := h.o.Transcript(); !reflect.DeepEqual(got, want) {
		t.Fatalf("user turn not retained: %+v", got)
	}
	if h.tts.calls() != 0 {
		t.Fatalf("tts called after dialogue failure")
	}

	if err := h.o.Resend(context.Background()); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if len(h.dlg.reqs) != 2 || !reflect.DeepEqual(h.dlg.reqs[0], h.dlg.reqs[1]) {
		t.Fatalf("resend did not repeat the same request: %+v", h.dlg.reqs)
	}
	want = append(want, convo.AssistantTurn("Dharma is..."))
	if got := h.o.Transcript(); !reflect.DeepEqual(got, want) {
		t.Fatalf("transcript after resend: %+v", got)
	}
	if err := h.o.StopSpeaking(); err != nil {
		t.Fatalf("stop speaking: %v", err)
	}
	if err := h.o.Resend(context.Background()); !errors.Is(err, ErrNothingToResend) {
		t.Fatalf("expected ErrNothingToResend, got %v", err)
	}
}

func TestEmptyReplyIsDialogueFailure(t *testing.T) {
	h := newHarness(t)
	h.dlg.replies = []string{"   "}

	if err := h.speak(t); !errors.Is(err, ErrDialogueFailed) {
		t.Fatalf("expected ErrDialogueFailed, got %v", err)
	}
	if len(h.o.Transcript()) != 1 {
		t.Fatalf("assistant turn appended for empty reply: %+v", h.o.Transcript())
	}
}

func TestSynthesisFailureKeepsReply(t *testing.T) {
	cases := map[string]func(*fakeTTS){
		"error":       func(f *fakeTTS) { f.err = errUpstream },
		"empty audio": func(f *fakeTTS) { f.audio = "" },
		"undecodable": func(f *fakeTTS) { f.audio = "%%% not base64 %%%" },
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			setup(h.tts)

			err := h.speak(t)
			if !errors.Is(err, ErrSynthesisFailed) {
				t.Fatalf("expected ErrSynthesisFailed, got %v", err)
			}
			want := convo.Transcript{convo.UserTurn("What is dharma?"), convo.AssistantTurn("Dharma is...")}
			if got := h.o.Transcript(); !reflect.DeepEqual(got, want) {
				t.Fatalf("reply not retained: %+v", got)
			}
			if h.o.State() != Errored || len(h.spk.played) != 0 {
				t.Fatalf("state=%s played=%d", h.o.State(), len(h.spk.played))
			}
		})
	}
}

func TestMicrophoneRefused(t *testing.T) {
	h := newHarness(t)
	h.mic.acquireErr = errors.New("permission denied")

	err := h.o.StartCapture(context.Background())
	if !errors.Is(err, ErrDeviceDenied) {
		t.Fatalf("expected ErrDeviceDenied, got %v", err)
	}
	if h.o.State() != Errored || h.o.LastError().Message() != "Microphone access denied" {
		t.Fatalf("state=%s err=%v", h.o.State(), h.o.LastError())
	}
	if h.stt.calls() != 0 {
		t.Fatalf("network call made after device failure")
	}

	// a new attempt from Errored is allowed once the device is available
	h.mic.acquireErr = nil
	if err := h.speak(t); err != nil {
		t.Fatalf("retry turn: %v", err)
	}
	if h.o.LastError() != nil {
		t.Fatalf("last error not superseded by the new turn")
	}
}

func TestBusyStatesRejectActions(t *testing.T) {
	h := newHarness(t, WithTranscript(convo.Transcript{convo.UserTurn("a"), convo.AssistantTurn("b")}))
	ctx := context.Background()

	if err := h.o.StartCapture(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.o.StartCapture(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("second start while recording: %v", err)
	}
	if err := h.o.ClearTranscript(); !errors.Is(err, ErrBusy) {
		t.Fatalf("clear while recording: %v", err)
	}
	if len(h.o.Transcript()) != 2 {
		t.Fatalf("transcript changed while recording")
	}
	if err := h.o.SetLanguage(convo.English); !errors.Is(err, ErrBusy) {
		t.Fatalf("language change while recording: %v", err)
	}
	if err := h.o.SubmitText(ctx, "hi"); !errors.Is(err, ErrBusy) {
		t.Fatalf("submit while recording: %v", err)
	}

	if err := h.o.CancelCapture(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, rel := h.mic.counts(); rel != 1 {
		t.Fatalf("cancel did not release the microphone")
	}
	if err := h.o.StopCapture(ctx); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("stop while idle: %v", err)
	}
	if err := h.o.ClearTranscript(); err != nil {
		t.Fatalf("clear from idle: %v", err)
	}
	if len(h.o.Transcript()) != 0 {
		t.Fatalf("transcript not cleared")
	}
}

func TestStopSpeaking(t *testing.T) {
	h := newHarness(t)
	if err := h.speak(t); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if err := h.o.StartCapture(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("start while speaking: %v", err)
	}
	if err := h.o.StopSpeaking(); err != nil {
		t.Fatalf("stop speaking: %v", err)
	}
	if h.o.State() != Idle {
		t.Fatalf("state after stop: %s", h.o.State())
	}
	if h.spk.stops() != 1 {
		t.Fatalf("speaker released %d times", h.spk.stops())
	}
	if h.o.LastError() != nil {
		t.Fatalf("user stop recorded as error: %v", h.o.LastError())
	}
}

func TestPlaybackFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.spk.playErr = errors.New("device unplugged")

	if err := h.speak(t); err != nil {
		t.Fatalf("turn: %v", err)
	}
	waitFor(t, h.o, Idle)
	le := h.o.LastError()
	if le == nil || !errors.Is(le, ErrDeviceDenied) || le.Stage != StagePlayback {
		t.Fatalf("unexpected last error: %v", le)
	}
	if len(h.o.Transcript()) != 2 {
		t.Fatalf("transcript lost on playback failure")
	}
}

func TestAcknowledgeKeepsMessage(t *testing.T) {
	h := newHarness(t)
	h.stt.err = errUpstream
	_ = h.speak(t)

	h.o.Acknowledge()
	if h.o.State() != Idle {
		t.Fatalf("state after acknowledge: %s", h.o.State())
	}
	if h.o.LastError() == nil {
		t.Fatalf("error message dropped on acknowledge")
	}
}

func TestLanguageIsForwardedToEveryStage(t *testing.T) {
	h := newHarness(t)
	if err := h.o.SetLanguage(convo.Kannada); err != nil {
		t.Fatalf("set language: %v", err)
	}
	if err := h.speak(t); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if h.stt.reqs[0].Language != convo.Kannada || h.dlg.reqs[0].Language != convo.Kannada || h.tts.reqs[0].Language != convo.Kannada {
		t.Fatalf("language not forwarded: stt=%s dialogue=%s tts=%s",
			h.stt.reqs[0].Language, h.dlg.reqs[0].Language, h.tts.reqs[0].Language)
	}
	if h.o.SetLanguage(convo.Language("xx-YY")); h.o.Snapshot().Language != convo.DefaultLanguage {
		t.Fatalf("unknown language did not fall back")
	}
}

func TestSubmitTextSkipsTranscription(t *testing.T) {
	h := newHarness(t)
	if err := h.o.SubmitText(context.Background(), "  What is karma? "); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if h.stt.calls() != 0 {
		t.Fatalf("stt called for typed input")
	}
	if h.dlg.reqs[0].Message != "What is karma?" {
		t.Fatalf("unexpected message: %q", h.dlg.reqs[0].Message)
	}
	if h.o.State() != Speaking {
		t.Fatalf("state: %s", h.o.State())
	}
}

func TestSubscribersSeeEveryState(t *testing.T) {
	h := newHarness(t)
	var (
		mu   sync.Mutex
		seen []State
	)
	unsubscribe := h.o.Subscribe(func(s Snapshot) {
		mu.Lock()
		if len(seen) == 0 || seen[len(seen)-1] != s.State {
			seen = append(seen, s.State)
		}
		mu.Unlock()
	})
	if err := h.speak(t); err != nil {
		t.Fatalf("turn: %v", err)
	}
	close(h.spk.finish)
	waitFor(t, h.o, Idle)

	mu.Lock()
	got := append([]State(nil), seen...)
	mu.Unlock()
	want := []State{Recording, Processing, Speaking, Idle}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("states: want=%v got=%v", want, got)
	}

	unsubscribe()
	h.o.SetLanguage(convo.English)
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("notified after unsubscribe: %v", seen)
	}
}

func TestStopSpeakingFromObserverReleasesSpeaker(t *testing.T) {
	h := newHarness(t)
	var once sync.Once
	h.o.Subscribe(func(s Snapshot) {
		if s.State == Speaking {
			once.Do(func() { h.o.StopSpeaking() })
		}
	})
	if err := h.speak(t); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if h.o.State() != Idle {
		t.Fatalf("state after stop: %s", h.o.State())
	}
	if h.spk.stops() != 1 || h.spk.active() != 0 {
		t.Fatalf("speaker not released: stops=%d active=%d", h.spk.stops(), h.spk.active())
	}

	h.mic.refill([]byte{5, 0})
	if err := h.o.StartCapture(context.Background()); err != nil {
		t.Fatalf("start after stop: %v", err)
	}
	if h.spk.active() != 0 {
		t.Fatalf("speaker still playing while recording")
	}
	h.o.CancelCapture()
}

func TestSlowMicrophoneDoesNotBlockReaders(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.mic.gate = gate

	started := make(chan error, 1)
	go func() { started <- h.o.StartCapture(context.Background()) }()
	waitFor(t, h.o, Recording)

	if err := h.o.StartCapture(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second start while acquiring: %v", err)
	}
	if err := h.o.StopCapture(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("stop while acquiring: %v", err)
	}
	close(gate)
	if err := <-started; err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-h.mic.drained:
	case <-time.After(2 * time.Second):
		t.Fatalf("microphone was never drained")
	}
	if err := h.o.StopCapture(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestCancelWhileAcquiringReleasesMicrophone(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.mic.gate = gate

	started := make(chan error, 1)
	go func() { started <- h.o.StartCapture(context.Background()) }()
	waitFor(t, h.o, Recording)

	if err := h.o.CancelCapture(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if h.o.State() != Idle {
		t.Fatalf("state after cancel: %s", h.o.State())
	}
	close(gate)
	if err := <-started; !errors.Is(err, ErrCaptureCancelled) {
		t.Fatalf("expected ErrCaptureCancelled, got %v", err)
	}
	if acq, rel := h.mic.counts(); acq != 1 || rel != 1 {
		t.Fatalf("microphone not released: acquired=%d released=%d", acq, rel)
	}
	if h.o.State() != Idle {
		t.Fatalf("abandoned capture changed state: %s", h.o.State())
	}
}
