// Package voice sequences one spoken turn at a time: capture audio, turn it
// into text, ask for a reply, synthesize that reply and play it back. The
// Orchestrator owns the transcript and the pipeline state; audio devices and
// remote services are injected.
package voice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gita-voice-lab/internal/convo"
	"github.com/gita-voice-lab/internal/gateway"
	"github.com/gita-voice-lab/internal/logging"
)

const tracerName = "github.com/gita-voice-lab/internal/voice"

// State is the pipeline mode. Exactly one is active at a time.
type State int

const (
	Idle State = iota
	Recording
	Processing
	Speaking
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	case Speaking:
		return "speaking"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// TokenSource supplies the bearer token; it is read once per remote call.
type TokenSource interface {
	Token() string
}

type Transcriber interface {
	Transcribe(ctx context.Context, token string, req gateway.STTRequest) (*gateway.STTResult, error)
}

type Conversant interface {
	Converse(ctx context.Context, token string, req gateway.DialogueRequest) (*gateway.DialogueResult, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, token string, req gateway.TTSRequest) (*gateway.TTSResult, error)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Tokens     TokenSource
	STT        Transcriber
	Dialogue   Conversant
	TTS        Synthesizer
	Microphone Microphone
	Speaker    Speaker
}

// Snapshot is a consistent copy of the orchestrator's observable state.
type Snapshot struct {
	State         State
	Language      convo.Language
	Transcript    convo.Transcript
	LastError     *TurnError
	CorrelationID string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLanguage sets the initial language.
func WithLanguage(lang convo.Language) Option {
	return func(o *Orchestrator) {
		if lang.Valid() {
			o.language = lang
		}
	}
}

// WithTranscript starts from an existing history.
func WithTranscript(t convo.Transcript) Option {
	return func(o *Orchestrator) {
		o.transcript = t.Clone()
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithArchive records every finished turn into a.
func WithArchive(a *Archive) Option {
	return func(o *Orchestrator) {
		o.archive = a
	}
}

// Orchestrator is the turn state machine.
type Orchestrator struct {
	deps    Deps
	tracer  trace.Tracer
	archive *Archive

	mu          sync.Mutex
	state       State
	language    convo.Language
	transcript  convo.Transcript
	lastErr     *TurnError
	cid         string
	recorder    *Recorder
	player      *Player
	subscribers map[int]func(Snapshot)
	nextSub     int
}

func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:        deps,
		language:    convo.DefaultLanguage,
		subscribers: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		State:         o.state,
		Language:      o.language,
		Transcript:    o.transcript.Clone(),
		LastError:     o.lastErr,
		CorrelationID: o.cid,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Transcript() convo.Transcript {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transcript.Clone()
}

// LastError is the most recent turn failure. It stays set after
// Acknowledge and is cleared when the next turn starts.
func (o *Orchestrator) LastError() *TurnError {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that made the change and must not block.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subscribers[id] = fn
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.subscribers, id)
		o.mu.Unlock()
	}
}

func (o *Orchestrator) notify() {
	o.mu.Lock()
	snap := o.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(o.subscribers))
	for _, fn := range o.subscribers {
		subs = append(subs, fn)
	}
	o.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// SetLanguage changes the language used from the next turn on. It is
// refused while a turn is being recorded or processed.
func (o *Orchestrator) SetLanguage(lang convo.Language) error {
	if !lang.Valid() {
		lang = convo.DefaultLanguage
	}
	o.mu.Lock()
	if o.state == Recording || o.state == Processing {
		o.mu.Unlock()
		return ErrBusy
	}
	o.language = lang
	o.mu.Unlock()
	o.notify()
	return nil
}

// StartCapture acquires the microphone and enters Recording. It is allowed
// from Idle, and from Errored, which it acknowledges. The device is acquired
// without holding the lock; meanwhile the state reads Recording with no
// recorder attached, and CancelCapture or Close abandon the attempt.
func (o *Orchestrator) StartCapture(ctx context.Context) error {
	o.mu.Lock()
	if o.state != Idle && o.state != Errored {
		o.mu.Unlock()
		return ErrBusy
	}
	o.cid = uuid.NewString()
	o.lastErr = nil
	o.state = Recording
	cid, lang := o.cid, o.language
	o.mu.Unlock()

	rec := NewRecorder(o.deps.Microphone)
	err := rec.Start(ctx)

	o.mu.Lock()
	current := o.state == Recording && o.cid == cid && o.recorder == nil
	if err != nil {
		te := turnError(ErrDeviceDenied, StageCapture, err)
		if current {
			o.state = Errored
			o.lastErr = te
		}
		o.mu.Unlock()
		logging.Warnw("voice: microphone refused", append(logging.TurnFields(cid, lang.String()), "err", err)...)
		o.notify()
		return te
	}
	if !current {
		o.mu.Unlock()
		rec.Abort()
		logging.Infow("voice: capture cancelled while acquiring", logging.TurnFields(cid, lang.String())...)
		return ErrCaptureCancelled
	}
	o.recorder = rec
	o.mu.Unlock()

	logging.Infow("voice: recording started", logging.TurnFields(cid, lang.String())...)
	o.notify()
	return nil
}

// CancelCapture abandons a recording without processing it.
func (o *Orchestrator) CancelCapture() error {
	o.mu.Lock()
	if o.state != Recording {
		o.mu.Unlock()
		return ErrNotRecording
	}
	rec := o.recorder
	o.recorder = nil
	o.state = Idle
	o.mu.Unlock()

	if rec != nil {
		rec.Abort()
	}
	o.notify()
	return nil
}

// StopCapture releases the microphone and runs the turn: transcribe,
// converse, synthesize, in that order. It returns once playback has begun
// or the turn has failed; a failure is also kept in LastError. The stages
// are not cancelled by ctx.
func (o *Orchestrator) StopCapture(ctx context.Context) error {
	o.mu.Lock()
	if o.state != Recording {
		o.mu.Unlock()
		return ErrNotRecording
	}
	if o.recorder == nil {
		o.mu.Unlock()
		return ErrBusy
	}
	rec := o.recorder
	o.recorder = nil
	o.state = Processing
	t := o.newTurnLocked()
	o.mu.Unlock()
	o.notify()

	capture := rec.Finish()
	t.capture = &capture
	logging.Infow("voice: recording stopped", append(logging.TurnFields(t.cid, t.lang.String()), logging.AudioFields(len(capture.PCM), capture.SampleRate, capture.Channels)...)...)

	ctx = t.context(ctx)
	text, err := o.transcribe(ctx, t, capture)
	if err != nil {
		return o.fail(t, err)
	}
	t.userText = text
	return o.respond(ctx, t, o.appendUserTurn(text), text)
}

// SubmitText runs a typed message through the same converse, synthesize
// and speak stages.
func (o *Orchestrator) SubmitText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyTranscript
	}
	o.mu.Lock()
	if o.state != Idle && o.state != Errored {
		o.mu.Unlock()
		return ErrBusy
	}
	o.cid = uuid.NewString()
	o.lastErr = nil
	o.state = Processing
	t := o.newTurnLocked()
	o.mu.Unlock()
	o.notify()

	t.userText = text
	return o.respond(t.context(ctx), t, o.appendUserTurn(text), text)
}

// Resend retries the dialogue for the last user turn when it went
// unanswered. No new user turn is appended; the same history is sent.
func (o *Orchestrator) Resend(ctx context.Context) error {
	o.mu.Lock()
	if o.state != Idle && o.state != Errored {
		o.mu.Unlock()
		return ErrBusy
	}
	last, ok := o.transcript.Last()
	if !ok || last.Role != convo.RoleUser {
		o.mu.Unlock()
		return ErrNothingToResend
	}
	prior := o.transcript[:len(o.transcript)-1].Clone()
	o.cid = uuid.NewString()
	o.lastErr = nil
	o.state = Processing
	t := o.newTurnLocked()
	o.mu.Unlock()
	o.notify()

	t.userText = last.Text
	logging.Infow("voice: resending unanswered message", logging.TurnFields(t.cid, t.lang.String())...)
	return o.respond(t.context(ctx), t, prior, last.Text)
}

// StopSpeaking ends playback early. It is a no-op unless Speaking.
func (o *Orchestrator) StopSpeaking() error {
	o.mu.Lock()
	if o.state != Speaking {
		o.mu.Unlock()
		return nil
	}
	p := o.player
	o.player = nil
	o.state = Idle
	o.mu.Unlock()

	if p != nil {
		p.Stop()
	}
	logging.Infow("voice: playback stopped by user")
	o.notify()
	return nil
}

// Acknowledge leaves Errored for Idle. LastError stays readable.
func (o *Orchestrator) Acknowledge() {
	o.mu.Lock()
	if o.state != Errored {
		o.mu.Unlock()
		return
	}
	o.state = Idle
	o.mu.Unlock()
	o.notify()
}

// ClearTranscript discards every turn. Only allowed when Idle.
func (o *Orchestrator) ClearTranscript() error {
	o.mu.Lock()
	if o.state != Idle {
		o.mu.Unlock()
		return ErrBusy
	}
	o.transcript = nil
	o.mu.Unlock()
	o.notify()
	return nil
}

// Close stops any active capture or playback.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	rec, p := o.recorder, o.player
	o.recorder, o.player = nil, nil
	if o.state == Recording || o.state == Speaking {
		o.state = Idle
	}
	o.mu.Unlock()
	if rec != nil {
		rec.Abort()
	}
	if p != nil {
		p.Stop()
	}
}

// turn carries the per-turn values fixed when the turn starts.
type turn struct {
	cid     string
	lang    convo.Language
	started time.Time

	capture   *Capture
	userText  string
	reply     string
	replyWAV  []byte
	durations map[Stage]time.Duration
}

func (o *Orchestrator) newTurnLocked() *turn {
	return &turn{
		cid:       o.cid,
		lang:      o.language,
		started:   time.Now(),
		durations: make(map[Stage]time.Duration),
	}
}

func (t *turn) context(ctx context.Context) context.Context {
	ctx = context.WithoutCancel(ctx)
	ctx = gateway.WithCorrelationID(ctx, t.cid)
	return logging.WithFields(ctx, logging.TurnFields(t.cid, t.lang.String())...)
}

func (o *Orchestrator) token() string {
	if o.deps.Tokens == nil {
		return ""
	}
	return o.deps.Tokens.Token()
}

// appendUserTurn records text and returns the turns that preceded it.
func (o *Orchestrator) appendUserTurn(text string) convo.Transcript {
	o.mu.Lock()
	prior := o.transcript.Clone()
	o.transcript = append(o.transcript, convo.UserTurn(text))
	o.mu.Unlock()
	o.notify()
	return prior
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, t *turn) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("correlation_id", t.cid),
		attribute.String("language", t.lang.String()),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (o *Orchestrator) transcribe(ctx context.Context, t *turn, c Capture) (text string, err error) {
	if c.Empty() {
		logging.InfowCtx(ctx, "voice: nothing captured; skipping transcription")
		return "", turnError(ErrEmptyTranscript, StageTranscribe, nil)
	}
	ctx, span := o.startSpan(ctx, "voice.transcribe", t)
	span.SetAttributes(attribute.Int("audio.bytes", len(c.PCM)))
	defer func() { endSpan(span, err) }()
	defer t.timeStage(StageTranscribe, time.Now())

	res, err := o.deps.STT.Transcribe(ctx, o.token(), gateway.STTRequest{Audio: c.WAV(), Language: t.lang})
	if err != nil {
		return "", turnError(ErrTranscriptionFailed, StageTranscribe, err)
	}
	text = strings.TrimSpace(res.Transcript)
	if text == "" {
		return "", turnError(ErrEmptyTranscript, StageTranscribe, nil)
	}
	logging.DebugwCtx(ctx, "voice: transcript received", "chars", len(text))
	return text, nil
}

func (o *Orchestrator) converse(ctx context.Context, t *turn, prior convo.Transcript, message string) (reply string, err error) {
	ctx, span := o.startSpan(ctx, "voice.converse", t)
	span.SetAttributes(attribute.Int("history.turns", len(prior)))
	defer func() { endSpan(span, err) }()
	defer t.timeStage(StageConverse, time.Now())

	res, err := o.deps.Dialogue.Converse(ctx, o.token(), gateway.DialogueRequest{
		History:  prior,
		Message:  message,
		Language: t.lang,
	})
	if err != nil {
		return "", turnError(ErrDialogueFailed, StageConverse, err)
	}
	reply = strings.TrimSpace(res.Reply)
	if reply == "" {
		return "", turnError(ErrDialogueFailed, StageConverse, errEmptyReply)
	}
	return reply, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, t *turn, reply string) (audio string, err error) {
	ctx, span := o.startSpan(ctx, "voice.synthesize", t)
	span.SetAttributes(attribute.Int("reply.chars", len(reply)))
	defer func() { endSpan(span, err) }()
	defer t.timeStage(StageSynthesize, time.Now())

	res, err := o.deps.TTS.Synthesize(ctx, o.token(), gateway.TTSRequest{Text: reply, Language: t.lang})
	if err != nil {
		return "", turnError(ErrSynthesisFailed, StageSynthesize, err)
	}
	if strings.TrimSpace(res.Audio) == "" {
		return "", turnError(ErrSynthesisFailed, StageSynthesize, errEmptyAudio)
	}
	return res.Audio, nil
}

func (t *turn) timeStage(s Stage, start time.Time) {
	t.durations[s] = time.Since(start)
}

// respond runs converse, synthesize and speak for message. The assistant
// turn is appended as soon as the reply arrives, so a synthesis failure
// still leaves the reply in the transcript.
func (o *Orchestrator) respond(ctx context.Context, t *turn, prior convo.Transcript, message string) error {
	reply, err := o.converse(ctx, t, prior, message)
	if err != nil {
		return o.fail(t, err)
	}
	t.reply = reply
	o.mu.Lock()
	o.transcript = append(o.transcript, convo.AssistantTurn(reply))
	o.mu.Unlock()
	o.notify()

	audio, err := o.synthesize(ctx, t, reply)
	if err != nil {
		return o.fail(t, err)
	}

	p := NewPlayer(o.deps.Speaker)
	if err := p.Load(audio); err != nil {
		kind := ErrSynthesisFailed
		if errors.Is(err, ErrDeviceDenied) {
			kind = ErrDeviceDenied
		}
		return o.fail(t, turnError(kind, StagePlayback, err))
	}
	t.replyWAV = p.audio

	// Playback starts before Speaking is visible, so a StopSpeaking from an
	// observer always finds a running player.
	o.mu.Lock()
	o.state = Speaking
	o.player = p
	p.Start(ctx, func(err error) { o.playbackEnded(p, err) })
	o.mu.Unlock()

	logging.InfowCtx(ctx, "voice: turn complete; speaking",
		"transcribe_ms", t.durations[StageTranscribe].Milliseconds(),
		"converse_ms", t.durations[StageConverse].Milliseconds(),
		"synthesize_ms", t.durations[StageSynthesize].Milliseconds(),
	)
	o.record(t, nil)
	o.notify()
	return nil
}

func (o *Orchestrator) playbackEnded(p *Player, err error) {
	o.mu.Lock()
	if o.player != p {
		o.mu.Unlock()
		return
	}
	o.player = nil
	if o.state == Speaking {
		o.state = Idle
	}
	if err != nil {
		o.lastErr = turnError(ErrDeviceDenied, StagePlayback, err)
	}
	o.mu.Unlock()

	if err != nil {
		logging.Warnw("voice: playback failed", "err", err)
	} else {
		logging.Debugw("voice: playback finished")
	}
	o.notify()
}

// fail moves to Errored. Turns already appended are kept.
func (o *Orchestrator) fail(t *turn, err error) error {
	var te *TurnError
	if !errors.As(err, &te) {
		te = turnError(ErrDialogueFailed, StageConverse, err)
	}
	o.mu.Lock()
	o.state = Errored
	o.lastErr = te
	o.mu.Unlock()

	fields := append(logging.TurnFields(t.cid, t.lang.String()), "stage", string(te.Stage), "err", te.Error())
	if status := gateway.StatusOf(te.Err); status != 0 {
		fields = append(fields, "status", status)
	}
	logging.Warnw("voice: turn failed", fields...)
	o.record(t, te)
	o.notify()
	return te
}

func (o *Orchestrator) record(t *turn, te *TurnError) {
	if o.archive == nil {
		return
	}
	rec := TurnRecord{
		CorrelationID: t.cid,
		Language:      t.lang,
		StartedAt:     t.started,
		Transcript:    t.userText,
		Reply:         t.reply,
		ReplyAudio:    t.replyWAV,
		Durations:     t.durations,
	}
	if t.capture != nil {
		rec.Capture = t.capture
	}
	if te != nil {
		rec.Error = te.Error()
	}
	if err := o.archive.Record(rec); err != nil {
		logging.Warnw("voice: archive write failed", "err", err, "correlation_id", t.cid)
	}
}
