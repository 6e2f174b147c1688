package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/gita-voice-lab/internal/config"
	"github.com/gita-voice-lab/internal/convo"
	"github.com/gita-voice-lab/internal/discordaudio"
	"github.com/gita-voice-lab/internal/gateway"
	"github.com/gita-voice-lab/internal/logging"
	"github.com/gita-voice-lab/internal/mcptools"
	"github.com/gita-voice-lab/internal/session"
	"github.com/gita-voice-lab/internal/statefeed"
	"github.com/gita-voice-lab/internal/textchat"
	"github.com/gita-voice-lab/internal/voice"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	sugar := logging.Init()
	defer logging.Sync()

	cfg := config.LoadClient()
	if cfg.DiscordToken == "" {
		logging.FatalExitf("DISCORD_BOT_TOKEN required")
	}
	if cfg.GuildID == "" || cfg.VoiceChannelID == "" {
		logging.FatalExitf("GUILD_ID and VOICE_CHANNEL_ID required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := session.Open(ctx, cfg)
	if err != nil {
		logging.FatalExitf("session open failed", "err", err)
	}
	if u := sess.User(); u != nil {
		logging.Infow("logged in", logging.UserFields(u.ID, u.Email)...)
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logging.FatalExitf("discordgo.New failed", "err", err)
	}
	// Guilds + GuildVoiceStates are enough for voice and slash commands.
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	sugar.Infow("using gateway intents", "intents", dg.Identify.Intents)

	maxPayload := 8 * 1024
	if v := os.Getenv("PAYLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxPayload = n
		} else {
			sugar.Warnw("invalid PAYLOAD_MAX_BYTES; using default", "value", v, "default", maxPayload)
		}
	}
	dg.AddHandler(eventLogger{maxPayload: maxPayload}.handle)

	if err := dg.Open(); err != nil {
		logging.FatalExitf("discord session open failed", "err", err)
	}
	sugar.Infow("discord session opened")

	vc, err := dg.ChannelVoiceJoin(cfg.GuildID, cfg.VoiceChannelID, false, false)
	if err != nil {
		dg.Close()
		logging.FatalExitf("voice join failed", "guild", cfg.GuildID, "channel", cfg.VoiceChannelID, "err", err)
	}
	ssrcs := discordaudio.NewSSRCMap()
	vc.AddHandler(ssrcs.HandleSpeakingUpdate)
	names := discordaudio.NewSessionResolver(dg)
	sugar.Infow("voice joined", "guild", cfg.GuildID, "channel", names.ChannelName(cfg.VoiceChannelID))

	target := &discordaudio.Target{}
	gw := gateway.New(cfg.APIBaseURL, cfg.GatewayTimeout)
	archive := voice.NewArchive(cfg.SaveAudioDir)
	orch := voice.New(voice.Deps{
		Tokens:     sess,
		STT:        gw.STT(),
		Dialogue:   gw.Dialogue(),
		TTS:        gw.TTS(),
		Microphone: discordaudio.NewMicrophone(vc, ssrcs, target),
		Speaker:    discordaudio.NewSpeaker(vc),
	}, voice.WithLanguage(convo.ParseLanguage(cfg.Language)), voice.WithArchive(archive))

	var wg sync.WaitGroup
	if archive != nil {
		wg.Add(1)
		archive.StartCleaner(ctx, &wg, cfg.SaveAudioRetention, cfg.SaveAudioInterval, cfg.SaveAudioMaxFiles)
	}

	hub := statefeed.NewHub()
	unsubscribe := orch.Subscribe(hub.Publish)
	hub.Publish(orch.Snapshot())
	var feed *http.Server
	if cfg.StateFeedAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/state", hub)
		mux.Handle("/mcp/ws", mcptools.Handler(mcptools.NewServer(version, textchat.New(gw.Generate(), sess), orch)))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		feed = &http.Server{Addr: cfg.StateFeedAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			sugar.Infow("state feed listening", "addr", cfg.StateFeedAddr)
			if err := feed.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				sugar.Warnw("state feed stopped", "err", err)
			}
		}()
	}

	cmds := &commands{voice: orch, target: target, names: names}
	dg.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		cmds.handleInteraction(ctx, s, i)
	})
	if dg.State.User == nil {
		sugar.Warnw("no READY user yet; slash commands not registered")
	} else if _, err := dg.ApplicationCommandBulkOverwrite(dg.State.User.ID, cfg.GuildID, applicationCommands()); err != nil {
		sugar.Warnw("slash command registration failed", "err", err)
	}
	sugar.Infow("bot ready", "language", cfg.Language, "state_feed", cfg.StateFeedAddr != "", "archive", cfg.SaveAudioDir)

	<-ctx.Done()
	sugar.Infow("shutdown signal received, closing resources")

	unsubscribe()
	orch.Close()
	hub.Close()
	if feed != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := feed.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("state feed shutdown error", "err", err)
		}
		cancel()
	}
	if err := vc.Disconnect(); err != nil {
		sugar.Warnw("voice disconnect error", "err", err)
	}
	if err := dg.Close(); err != nil {
		sugar.Warnw("discord session close error", "err", err)
	}
	wg.Wait()
	sugar.Infow("shutdown complete")
}
