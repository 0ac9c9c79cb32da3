package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/jpleva/channel-client/internal/auth"
	"github.com/jpleva/channel-client/internal/channel"
	"github.com/jpleva/channel-client/internal/cipher"
	"github.com/jpleva/channel-client/internal/config"
	"github.com/jpleva/channel-client/internal/rest"
	"github.com/jpleva/channel-client/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/channel.local.yaml", "path to config file")
	join := flag.String("join", "", "presence data to announce on join (JSON string)")
	send := flag.String("send", "", "message to publish after connecting")
	httpTransport := flag.Bool("http", false, "publish -send over the HTTP fallback path")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Set up structured logging
	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting channeltool",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"project", cfg.Project.ID,
		"channel", cfg.Channel.Class+"/"+cfg.Channel.ID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	opts := []channel.Option{channel.WithLogger(logger)}

	if cfg.Project.RestURL != "" {
		creds := auth.Credentials{
			Username: cfg.Auth.Username,
			Password: cfg.Auth.Password,
			Token:    cfg.Auth.Token,
		}
		fallback := rest.New(cfg.Project.RestURL, cfg.Project.ID, creds,
			rest.WithTimeout(cfg.Project.Timeout),
			rest.WithLogger(logger),
		)
		opts = append(opts, channel.WithRequester(fallback))
	}

	if cfg.Encryption.Secret != "" {
		ring, err := cipher.NewRing(cfg.Encryption.Secret, cfg.Encryption.CurrentVersion)
		if err != nil {
			logger.Error("failed to build key ring", "error", err)
			os.Exit(1)
		}
		opts = append(opts, channel.WithCipherProvider(ring))
	}

	ch := channel.New(cfg, opts...)
	defer ch.Disconnect()

	ch.OnError(func(err error) {
		logger.Error("channel error", "error", err)
	})
	ch.On("connect", func(evt channel.Event) {
		logger.Info("connected", "connection_id", ch.ConnectionID())
	})
	ch.On("disconnect", func(evt channel.Event) {
		logger.Warn("disconnected")
	})
	ch.On("message", func(evt channel.Event) {
		logger.Info("message", "payload", evt.Payload)
	})
	ch.On("setItem", func(evt channel.Event) {
		logger.Info("item set", "item", evt.Item, "value", evt.Payload)
	})
	ch.On("removeItem", func(evt channel.Event) {
		logger.Info("item removed", "item", evt.Item)
	})
	ch.On("presence:join", func(evt channel.Event) {
		logger.Info("presence join", "connection_id", evt.ConnectionID, "data", evt.Payload)
	})
	ch.On("presence:leave", func(evt channel.Event) {
		logger.Info("presence leave", "connection_id", evt.ConnectionID)
	})

	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	err = ch.Connect(connectCtx)
	connectCancel()
	if err != nil {
		logger.Error("initial connect failed", "error", err)
		os.Exit(1)
	}

	if *join != "" {
		if err := ch.Presence().Join(ctx, decodeArg(*join)); err != nil {
			logger.Error("presence join failed", "error", err)
		}
	}

	if *send != "" {
		payload := decodeArg(*send)
		if *httpTransport {
			err = ch.SendHTTP(ctx, payload)
		} else {
			err = ch.Send(ctx, payload)
		}
		if err != nil {
			logger.Error("send failed", "error", err)
		}
	}

	<-ctx.Done()

	if *join != "" {
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := ch.Presence().Leave(leaveCtx); err != nil {
			logger.Warn("presence leave failed", "error", err)
		}
		leaveCancel()
	}

	logger.Info("channeltool stopped")
}

// decodeArg treats a flag value as JSON when it parses as JSON, otherwise
// as a plain string payload.
func decodeArg(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
