package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parleybot/parley/internal/channels"
	"github.com/parleybot/parley/internal/channels/discord"
	"github.com/parleybot/parley/internal/channels/slack"
	"github.com/parleybot/parley/internal/channels/telegram"
	"github.com/parleybot/parley/internal/config"
	"github.com/parleybot/parley/internal/logging"
	"github.com/parleybot/parley/internal/session"
	"github.com/parleybot/parley/internal/titles"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect the configured channels and run the title engine",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	cfg := loadConfig()

	if err := cfg.EnsureDataDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating data dir: %v\n", err)
		os.Exit(1)
	}

	store, err := session.Open(cfg.DBPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := channels.NewManager()
	connectChannels(ctx, cfg, manager)
	if len(manager.All()) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no channels enabled; set channels.*.enabled in config")
		os.Exit(1)
	}

	var gen *titles.Generator
	if cfg.Title.Strategy != config.StrategyDeterministic {
		gen = titles.NewGenerator(cfg.Title.Model, time.Duration(cfg.Title.TimeoutMS)*time.Millisecond)
	}

	engine, err := titles.NewEngine(store, manager, gen, titles.Options{
		Strategy:         cfg.Title.Strategy,
		MaxChars:         cfg.Title.MaxChars,
		AllowOverwrite:   cfg.Title.AllowOverwrite,
		FirstMessageOnly: cfg.Title.FirstMessageOnly,
		Placeholders:     cfg.Title.Placeholders,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, ch := range manager.All() {
		ch.SetHandler(inboundHandler(ctx, store, engine))
	}

	sweeper := titles.NewSweeper(engine, store, cfg.Title.SweepSchedule)
	if err := sweeper.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting sweeper: %v\n", err)
		os.Exit(1)
	}

	logging.Infof("parley: running with strategy=%s channels=%d", cfg.Title.Strategy, len(manager.All()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Infof("parley: received %v, shutting down", sig)

	cancel()
	sweeper.Stop()
	for _, ch := range manager.All() {
		if err := ch.Disconnect(); err != nil {
			logging.Warnf("parley: disconnect %s: %v", ch.ID(), err)
		}
	}
}

// connectChannels registers and connects every enabled adapter. A channel
// that fails to connect is logged and skipped, not fatal.
func connectChannels(ctx context.Context, cfg *config.Config, manager *channels.Manager) {
	if cfg.Channels.Slack.Enabled {
		a := slack.New()
		if err := a.Connect(ctx, channels.ChannelConfig{
			Token:    cfg.Channels.Slack.BotToken,
			AppToken: cfg.Channels.Slack.AppToken,
		}); err != nil {
			logging.Errorf("parley: slack connect failed: %v", err)
		} else if err := manager.Register(a); err != nil {
			logging.Errorf("parley: slack register failed: %v", err)
		}
	}
	if cfg.Channels.Discord.Enabled {
		a := discord.New()
		if err := a.Connect(ctx, channels.ChannelConfig{Token: cfg.Channels.Discord.Token}); err != nil {
			logging.Errorf("parley: discord connect failed: %v", err)
		} else if err := manager.Register(a); err != nil {
			logging.Errorf("parley: discord register failed: %v", err)
		}
	}
	if cfg.Channels.Telegram.Enabled {
		a := telegram.New()
		if err := a.Connect(ctx, channels.ChannelConfig{Token: cfg.Channels.Telegram.Token}); err != nil {
			logging.Errorf("parley: telegram connect failed: %v", err)
		} else if err := manager.Register(a); err != nil {
			logging.Errorf("parley: telegram register failed: %v", err)
		}
	}
}

// inboundHandler routes a platform message into the title engine
func inboundHandler(ctx context.Context, store *session.Store, engine *titles.Engine) func(channels.InboundMessage) {
	return func(msg channels.InboundMessage) {
		if msg.ThreadID == "" {
			return
		}
		go func() {
			sessionKey := msg.ChannelType + ":" + msg.ChannelID
			sess, err := store.GetOrCreate(ctx, sessionKey, msg.ChannelType)
			if err != nil {
				logging.Warnf("parley: session lookup for %s failed: %v", sessionKey, err)
				return
			}
			outcome := engine.Apply(ctx, titles.Request{
				SessionID: sess.ID,
				Target: channels.TitleTarget{
					Channel:        msg.ChannelType,
					ConversationID: msg.ChannelID,
					ThreadID:       msg.ThreadID,
				},
				Primary:       msg.Text,
				FirstInThread: msg.FirstInThread,
			})
			if outcome.Result == titles.ResultApplied {
				logging.Infof("parley: titled %s -> %q", outcome.ThreadKey, outcome.Title)
			} else {
				logging.Debugf("parley: %s -> %s %s", outcome.ThreadKey, outcome.Result, outcome.Reason)
			}
		}()
	}
}
