package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/gita-voice-lab/internal/convo"
	"github.com/gita-voice-lab/internal/discordaudio"
	"github.com/gita-voice-lab/internal/logging"
	"github.com/gita-voice-lab/internal/voice"
)

// pipeline is the part of *voice.Orchestrator the slash commands drive.
type pipeline interface {
	Snapshot() voice.Snapshot
	StartCapture(ctx context.Context) error
	StopCapture(ctx context.Context) error
	CancelCapture() error
	SubmitText(ctx context.Context, text string) error
	Resend(ctx context.Context) error
	StopSpeaking() error
	Acknowledge()
	ClearTranscript() error
	SetLanguage(lang convo.Language) error
}

// listener selects whose audio the microphone accepts.
type listener interface {
	Set(userID string)
}

const (
	cmdTalk     = "talk"
	cmdDone     = "done"
	cmdCancel   = "cancel"
	cmdHush     = "hush"
	cmdSay      = "say"
	cmdRetry    = "retry"
	cmdLanguage = "language"
	cmdClear    = "clear"
	cmdAck      = "ack"
	cmdStatus   = "status"
)

// applicationCommands are registered per guild on startup.
func applicationCommands() []*discordgo.ApplicationCommand {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(convo.Languages))
	for _, l := range convo.Languages {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: l.Name(), Value: l.String()})
	}
	return []*discordgo.ApplicationCommand{
		{Name: cmdTalk, Description: "Start recording your question"},
		{Name: cmdDone, Description: "Stop recording and get an answer"},
		{Name: cmdCancel, Description: "Discard the current recording"},
		{Name: cmdHush, Description: "Stop the spoken answer"},
		{
			Name:        cmdSay,
			Description: "Ask a question by text; the answer is spoken",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "text",
				Description: "Your question",
				Required:    true,
			}},
		},
		{Name: cmdRetry, Description: "Resend the last unanswered question"},
		{
			Name:        cmdLanguage,
			Description: "Choose the conversation language",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "code",
				Description: "Language",
				Required:    true,
				Choices:     choices,
			}},
		},
		{Name: cmdClear, Description: "Forget the conversation so far"},
		{Name: cmdAck, Description: "Dismiss the last error"},
		{Name: cmdStatus, Description: "Show the pipeline state"},
	}
}

// commands turns slash commands into orchestrator calls and reply text.
type commands struct {
	voice  pipeline
	target listener
	names  discordaudio.NameResolver
}

// run executes one command for userID and returns the reply to show.
func (c *commands) run(ctx context.Context, name, userID string, opts map[string]string) string {
	ctx = logging.WithFields(ctx, "command", name, "user_id", userID)
	var err error
	switch name {
	case cmdTalk:
		c.target.Set(userID)
		if err = c.voice.StartCapture(ctx); err == nil {
			return fmt.Sprintf("Listening to %s. Use /done when you have finished.", c.displayName(userID))
		}
	case cmdDone:
		if err = c.voice.StopCapture(ctx); err == nil {
			return exchangeReply(c.voice.Snapshot().Transcript)
		}
	case cmdCancel:
		if err = c.voice.CancelCapture(); err == nil {
			return "Recording discarded."
		}
	case cmdHush:
		if err = c.voice.StopSpeaking(); err == nil {
			return "Stopped."
		}
	case cmdSay:
		if err = c.voice.SubmitText(ctx, opts["text"]); err == nil {
			return exchangeReply(c.voice.Snapshot().Transcript)
		}
	case cmdRetry:
		if err = c.voice.Resend(ctx); err == nil {
			return exchangeReply(c.voice.Snapshot().Transcript)
		}
	case cmdLanguage:
		lang := convo.ParseLanguage(opts["code"])
		if err = c.voice.SetLanguage(lang); err == nil {
			return fmt.Sprintf("Language set to %s.", lang.Name())
		}
	case cmdClear:
		if err = c.voice.ClearTranscript(); err == nil {
			return "Conversation cleared."
		}
	case cmdAck:
		c.voice.Acknowledge()
		return "Ready."
	case cmdStatus:
		return statusReply(c.voice.Snapshot())
	default:
		return "Unknown command."
	}
	logging.WarnwCtx(ctx, "bot: command failed", "err", err)
	return c.describe(err)
}

func (c *commands) displayName(userID string) string {
	if c.names != nil {
		if n := c.names.UserName(userID); n != "" {
			return n
		}
	}
	return "<@" + userID + ">"
}

// describe is the one-line reply for a failed command.
func (c *commands) describe(err error) string {
	var te *voice.TurnError
	switch {
	case errors.As(err, &te):
		return te.Message() + ". Use /retry or /ack."
	case errors.Is(err, voice.ErrBusy):
		return fmt.Sprintf("Busy right now (%s).", c.voice.Snapshot().State)
	case errors.Is(err, voice.ErrNotRecording):
		return "Not recording. Use /talk first."
	case errors.Is(err, voice.ErrCaptureCancelled):
		return "Recording cancelled."
	case errors.Is(err, voice.ErrNothingToResend):
		return "Nothing to resend."
	case errors.Is(err, voice.ErrEmptyTranscript):
		return "Please type a question."
	}
	return "Something went wrong."
}

// exchangeReply shows the latest question and answer.
func exchangeReply(t convo.Transcript) string {
	var b strings.Builder
	start := len(t) - 2
	if start < 0 {
		start = 0
	}
	for _, turn := range t[start:] {
		if turn.Role == convo.RoleUser {
			b.WriteString("> ")
		}
		b.WriteString(turn.Text)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

func statusReply(s voice.Snapshot) string {
	out := fmt.Sprintf("State: %s\nLanguage: %s\nTurns: %d", s.State, s.Language.Name(), len(s.Transcript))
	if s.LastError != nil {
		out += fmt.Sprintf("\nLast error: %s (%s)", s.LastError.Message(), s.LastError.Stage)
	}
	return out
}

// optionValues flattens string options by name.
func optionValues(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	m := make(map[string]string, len(opts))
	for _, o := range opts {
		if o.Type == discordgo.ApplicationCommandOptionString {
			m[o.Name] = o.StringValue()
		}
	}
	return m
}

// interactionUser is the invoking user in a guild or a DM.
func interactionUser(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// handleInteraction defers the response and edits it once the command has
// run, since a turn can outlast the three-second interaction deadline.
func (c *commands) handleInteraction(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		logging.Warnw("bot: interaction ack failed", "command", data.Name, "err", err)
		return
	}
	reply := c.run(ctx, data.Name, interactionUser(i), optionValues(data.Options))
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &reply}); err != nil {
		logging.Warnw("bot: interaction reply failed", "command", data.Name, "err", err)
	}
}
