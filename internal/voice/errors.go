package voice

import (
	"errors"
	"fmt"
)

var (
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrEmptyTranscript     = errors.New("empty transcript")
	ErrDialogueFailed      = errors.New("dialogue failed")
	ErrSynthesisFailed     = errors.New("synthesis failed")
	ErrDeviceDenied        = errors.New("audio device unavailable")

	// ErrBusy is returned when an action is not allowed in the current state.
	ErrBusy = errors.New("voice pipeline busy")

	ErrNotRecording     = errors.New("not recording")
	ErrNothingToResend  = errors.New("no unanswered message to resend")
	ErrCaptureCancelled = errors.New("capture cancelled before the microphone was ready")
	errEmptyReply       = errors.New("empty reply")
	errEmptyAudio       = errors.New("no audio generated")
	errUndecodableAudio = errors.New("audio payload could not be decoded")
)

// Stage names the pipeline step a TurnError came from.
type Stage string

const (
	StageCapture    Stage = "capture"
	StageTranscribe Stage = "transcribe"
	StageConverse   Stage = "converse"
	StageSynthesize Stage = "synthesize"
	StagePlayback   Stage = "playback"
)

// TurnError is the single failure type surfaced by the Orchestrator. Kind
// is one of the Err* sentinels above; Err is the underlying cause, if any
// (often a *gateway.Error).
type TurnError struct {
	Kind  error
	Stage Stage
	Err   error
}

func (e *TurnError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *TurnError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message is the one sentence shown to the user.
func (e *TurnError) Message() string {
	switch e.Kind {
	case ErrDeviceDenied:
		if e.Stage == StagePlayback {
			return "Audio playback failed"
		}
		return "Microphone access denied"
	case ErrTranscriptionFailed:
		return "Speech recognition failed"
	case ErrEmptyTranscript:
		return "Could not understand audio"
	case ErrDialogueFailed:
		return "AI response failed"
	case ErrSynthesisFailed:
		return "Speech synthesis failed"
	}
	return "Something went wrong"
}

func turnError(kind error, stage Stage, err error) *TurnError {
	return &TurnError{Kind: kind, Stage: stage, Err: err}
}
