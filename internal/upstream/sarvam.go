package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/gita-voice-lab/internal/convo"
	"github.com/gita-voice-lab/internal/logging"
)

const (
	sarvamProvider  = "sarvam"
	sarvamKeyHeader = "api-subscription-key"

	STTModel = "saarika:v2"
	TTSModel = "bulbul:v2"
	// TTSSpeaker is the voice used for every reply.
	TTSSpeaker = "anushka"
)

// maxBody bounds how much of a provider response is read.
const maxBody = 32 << 20

// Sarvam is a client for the Sarvam speech APIs.
type Sarvam struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewSarvam returns a client for baseURL. A zero timeout means 60s.
func NewSarvam(baseURL, apiKey string, timeout time.Duration) *Sarvam {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Sarvam{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type sttResponse struct {
	Transcript   string `json:"transcript"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Transcribe uploads a WAV recording and returns its transcript.
func (s *Sarvam) Transcribe(ctx context.Context, wav []byte, lang convo.Language) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", &Error{Provider: sarvamProvider, Err: err}
	}
	if _, err := fw.Write(wav); err != nil {
		return "", &Error{Provider: sarvamProvider, Err: err}
	}
	_ = mw.WriteField("language_code", lang.String())
	_ = mw.WriteField("model", STTModel)
	if err := mw.Close(); err != nil {
		return "", &Error{Provider: sarvamProvider, Err: err}
	}

	raw, err := s.post(ctx, "/speech-to-text", mw.FormDataContentType(), body.Bytes())
	if err != nil {
		return "", err
	}
	var out sttResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return "", &Error{Provider: sarvamProvider, Err: fmt.Errorf("decode transcript: %w", err)}
	}
	return out.Transcript, nil
}

type ttsRequest struct {
	Inputs              []string `json:"inputs"`
	TargetLanguageCode  string   `json:"target_language_code"`
	Speaker             string   `json:"speaker"`
	Model               string   `json:"model"`
	Pitch               float64  `json:"pitch"`
	Pace                float64  `json:"pace"`
	Loudness            float64  `json:"loudness"`
	EnablePreprocessing bool     `json:"enable_preprocessing"`
}

type ttsResponse struct {
	Audios []string `json:"audios"`
}

// Synthesize returns base64 WAV audio for text, or ErrNoAudio.
func (s *Sarvam) Synthesize(ctx context.Context, text string, lang convo.Language) (string, error) {
	payload, err := sonic.Marshal(ttsRequest{
		Inputs:              []string{text},
		TargetLanguageCode:  lang.String(),
		Speaker:             TTSSpeaker,
		Model:               TTSModel,
		Pitch:               0,
		Pace:                1.0,
		Loudness:            1.5,
		EnablePreprocessing: true,
	})
	if err != nil {
		return "", &Error{Provider: sarvamProvider, Err: err}
	}
	raw, err := s.post(ctx, "/text-to-speech", "application/json", payload)
	if err != nil {
		return "", err
	}
	var out ttsResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return "", &Error{Provider: sarvamProvider, Err: fmt.Errorf("decode audio: %w", err)}
	}
	if len(out.Audios) == 0 || out.Audios[0] == "" {
		return "", ErrNoAudio
	}
	return out.Audios[0], nil
}

func (s *Sarvam) post(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	if s == nil || s.BaseURL == "" {
		return nil, &Error{Provider: sarvamProvider, Err: ErrNotConfigured}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Provider: sarvamProvider, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(sarvamKeyHeader, s.APIKey)

	sent := time.Now()
	resp, err := s.HTTP.Do(req)
	if err != nil {
		logging.WarnwCtx(ctx, "sarvam: request failed", "path", path, "err", err)
		return nil, &Error{Provider: sarvamProvider, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &Error{Provider: sarvamProvider, Status: resp.StatusCode, Err: err}
	}
	logging.DebugwCtx(ctx, "sarvam: response received", "path", path, "status", resp.StatusCode, "latency_ms", time.Since(sent).Milliseconds(), "bytes", len(raw))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.WarnwCtx(ctx, "sarvam: returned non-2xx", "path", path, "status", resp.StatusCode)
		return nil, &Error{Provider: sarvamProvider, Status: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
