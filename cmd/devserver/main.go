package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"parlor.chat/widget/common/id"
	"parlor.chat/widget/common/logger"
	"parlor.chat/widget/core/config"
	"parlor.chat/widget/internal/devserver"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Env)

	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	store := devserver.NewStore()

	var responder devserver.Responder
	if cfg.OpenAI.Enabled() {
		responder = devserver.NewOpenAIResponder(cfg.OpenAI)
		slog.InfoContext(ctx, "dev agent backed by openai", "model", cfg.OpenAI.Model)
	} else {
		responder = devserver.EchoResponder()
		slog.InfoContext(ctx, "dev agent using scripted responses")
	}

	agent := devserver.NewAgent(store, responder, cfg.DevServer.ReplyDelay)
	api := devserver.New(store, agent)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(devserver.Recovery())
	router.Use(devserver.Logger())
	api.Routes(router)

	server := &http.Server{
		Addr:              ":" + cfg.DevServer.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Long-poll responses may legitimately take over a minute.
		ReadTimeout:  90 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "devserver starting", "port", cfg.DevServer.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}
