// Command probe is a terminal harness for the widget core: it starts a
// session against a backend, streams the reconciled conversation to stdout,
// and sends each stdin line as a customer message.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"parlor.chat/widget"
	"parlor.chat/widget/common/logger"
	"parlor.chat/widget/core/config"
	"parlor.chat/widget/internal/model"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Env)

	client, err := widget.New(widget.Options{
		BaseURL:   cfg.Backend.BaseURL,
		AgentID:   cfg.Backend.AgentID,
		SessionID: cfg.Backend.SessionID,
		Token:     cfg.Identity.Token,
		Provider:  cfg.Identity.Provider,
		Polling: widget.PollingConfig{
			ActiveInterval:    cfg.Polling.ActiveInterval,
			NormalInterval:    cfg.Polling.NormalInterval,
			IdleInterval:      cfg.Polling.IdleInterval,
			VeryIdleInterval:  cfg.Polling.VeryIdleInterval,
			RecencyWindow:     cfg.Polling.RecencyWindow,
			IdleThreshold:     cfg.Polling.IdleThreshold,
			VeryIdleThreshold: cfg.Polling.VeryIdleThreshold,
		},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to build widget client", "error", err)
		os.Exit(1)
	}

	if err := client.Start(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to start widget", "error", err)
		os.Exit(1)
	}
	defer client.Stop()

	go render(client)
	go drainErrors(client)

	fmt.Println("connected. type a message and press enter (ctrl-d to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		if err := client.SendMessage(ctx, text); err != nil {
			slog.WarnContext(ctx, "send failed", "error", err)
		}
	}
}

// render prints newly confirmed messages and status-line changes.
func render(client *widget.Client) {
	var lastOffset int64 = -1
	lastStatus := ""

	for {
		time.Sleep(200 * time.Millisecond)

		snapshot := client.Snapshot()
		for _, msg := range snapshot.Messages {
			if msg.Offset <= lastOffset {
				continue
			}
			lastOffset = msg.Offset
			if msg.Source == model.SourceCustomer {
				continue // already echoed locally
			}
			fmt.Printf("agent> %s\n", msg.Text)
		}

		statusLine := ""
		if snapshot.Status != nil {
			statusLine = snapshot.Status.Text
		}
		if statusLine != lastStatus {
			lastStatus = statusLine
			if statusLine != "" {
				fmt.Printf("  [%s]\n", statusLine)
			}
		}
	}
}

func drainErrors(client *widget.Client) {
	for msg := range client.Errors() {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	}
}
