package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gita-voice-lab/internal/config"
	"github.com/gita-voice-lab/internal/gateway"
	"github.com/gita-voice-lab/internal/logging"
	"github.com/gita-voice-lab/internal/mcptools"
	"github.com/gita-voice-lab/internal/session"
	"github.com/gita-voice-lab/internal/textchat"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	sugar := logging.Init()
	defer logging.Sync()

	cfg := config.LoadClient()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := session.Open(ctx, cfg)
	if err != nil {
		logging.FatalExitf("session open failed", "err", err)
	}
	if u := sess.User(); u != nil {
		logging.Infow("logged in", logging.UserFields(u.ID, u.Email)...)
	}

	gw := gateway.New(cfg.APIBaseURL, cfg.GatewayTimeout)
	chat := textchat.New(gw.Generate(), sess)
	server := mcptools.NewServer(version, chat, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/mcp/ws", mcptools.Handler(server))

	srv := &http.Server{Addr: cfg.MCPListenAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		sugar.Infow("mcp server listening", "addr", cfg.MCPListenAddr, "api", cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.FatalExitf("mcp server failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("mcp server shutdown error", "err", err)
	}
	sugar.Infow("shutdown complete")
}
