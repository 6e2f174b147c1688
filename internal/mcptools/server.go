// Package mcptools exposes the text chat and the voice pipeline as MCP
// tools, served over websocket.
package mcptools

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gita-voice-lab/internal/convo"
	"github.com/gita-voice-lab/internal/logging"
	"github.com/gita-voice-lab/internal/voice"
)

// Tool names.
const (
	ToolAsk         = "ask"
	ToolResetChat   = "reset_chat"
	ToolVoiceStatus = "voice_status"
	ToolVoiceSay    = "voice_say"
	ToolVoiceLang   = "voice_set_language"
	ToolVoiceClear  = "voice_clear_transcript"
)

// Asker is the text chat behind the ask tool.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
	History() convo.Transcript
	Reset()
}

// Voice is the part of the voice orchestrator the tools drive.
type Voice interface {
	Snapshot() voice.Snapshot
	SubmitText(ctx context.Context, text string) error
	SetLanguage(lang convo.Language) error
	ClearTranscript() error
}

type AskInput struct {
	Question string `json:"question" jsonschema:"the question to ask"`
}

type AskOutput struct {
	Answer string       `json:"answer"`
	Turns  []convo.Turn `json:"turns"`
}

type SayInput struct {
	Text string `json:"text" jsonschema:"what the user says; the reply is spoken in the voice channel"`
}

type LanguageInput struct {
	Language string `json:"language" jsonschema:"hi-IN, en-IN or kn-IN; anything else selects hi-IN"`
}

type StatusOutput struct {
	State      string       `json:"state"`
	Language   string       `json:"language"`
	Transcript []convo.Turn `json:"transcript"`
	Error      string       `json:"error,omitempty"`
}

type empty struct{}

// NewServer builds the MCP server. chat is required; v may be nil, in which
// case the voice tools are not registered.
func NewServer(version string, chat Asker, v Voice) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: "gita-voice-lab", Version: version}, nil)

	mcp.AddTool(s, &mcp.Tool{Name: ToolAsk, Description: "Ask Krishna a question in the ongoing text conversation"},
		func(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AskOutput, error) {
			answer, err := chat.Ask(ctx, in.Question)
			if err != nil {
				return nil, AskOutput{}, err
			}
			return textResult(answer), AskOutput{Answer: answer, Turns: turns(chat.History())}, nil
		})
	mcp.AddTool(s, &mcp.Tool{Name: ToolResetChat, Description: "Forget the text conversation"},
		func(context.Context, *mcp.CallToolRequest, empty) (*mcp.CallToolResult, empty, error) {
			chat.Reset()
			return textResult("ok"), empty{}, nil
		})

	if v == nil {
		return s
	}
	mcp.AddTool(s, &mcp.Tool{Name: ToolVoiceStatus, Description: "Current voice pipeline state and transcript"},
		func(context.Context, *mcp.CallToolRequest, empty) (*mcp.CallToolResult, StatusOutput, error) {
			return nil, status(v.Snapshot()), nil
		})
	mcp.AddTool(s, &mcp.Tool{Name: ToolVoiceSay, Description: "Send typed text through the voice pipeline; the reply is spoken"},
		func(ctx context.Context, _ *mcp.CallToolRequest, in SayInput) (*mcp.CallToolResult, StatusOutput, error) {
			if err := v.SubmitText(ctx, in.Text); err != nil {
				return nil, StatusOutput{}, userError(err)
			}
			return nil, status(v.Snapshot()), nil
		})
	mcp.AddTool(s, &mcp.Tool{Name: ToolVoiceLang, Description: "Select the voice conversation language"},
		func(_ context.Context, _ *mcp.CallToolRequest, in LanguageInput) (*mcp.CallToolResult, StatusOutput, error) {
			if err := v.SetLanguage(convo.ParseLanguage(in.Language)); err != nil {
				return nil, StatusOutput{}, err
			}
			return nil, status(v.Snapshot()), nil
		})
	mcp.AddTool(s, &mcp.Tool{Name: ToolVoiceClear, Description: "Clear the voice transcript (only while idle)"},
		func(context.Context, *mcp.CallToolRequest, empty) (*mcp.CallToolResult, StatusOutput, error) {
			if err := v.ClearTranscript(); err != nil {
				return nil, StatusOutput{}, err
			}
			return nil, status(v.Snapshot()), nil
		})
	return s
}

// Handler serves MCP sessions over websocket, one session per connection.
func Handler(s *mcp.Server) http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Debugw("mcp: ws upgrade failed", "err", err)
			return
		}
		go func() {
			ss, err := s.Connect(context.Background(), NewWebSocketTransport(conn), nil)
			if err != nil {
				logging.Warnw("mcp: server connect error", "err", err)
				conn.Close()
				return
			}
			if err := ss.Wait(); err != nil {
				logging.Debugw("mcp: session ended with error", "err", err)
				return
			}
			logging.Debugw("mcp: session ended")
		}()
	})
}

func textResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

func turns(t convo.Transcript) []convo.Turn {
	if t == nil {
		return []convo.Turn{}
	}
	return t
}

func status(s voice.Snapshot) StatusOutput {
	out := StatusOutput{State: s.State.String(), Language: s.Language.String(), Transcript: turns(s.Transcript)}
	if s.LastError != nil {
		out.Error = s.LastError.Message()
	}
	return out
}

// userError turns a failed turn into its one-sentence message.
func userError(err error) error {
	var te *voice.TurnError
	if errors.As(err, &te) {
		return errors.New(te.Message())
	}
	return err
}
