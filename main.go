package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"temp_chat/internal/app"
	"temp_chat/internal/config"
	"temp_chat/internal/database"
	"temp_chat/internal/events"
	"temp_chat/internal/joinlink"
	"temp_chat/internal/logging"
	"temp_chat/internal/tunnel"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	flags := pflag.NewFlagSet("temp_chat", pflag.ContinueOnError)
	host := flags.Bool("host", false, "create a chat and print its join link")
	link := flags.String("join", "", "join the chat behind this temp:// link")
	username := flags.StringP("username", "u", "", "name shown to the other members")
	limit := flags.IntP("limit", "l", 10, "maximum number of members (host only)")
	password := flags.StringP("password", "p", "", "join link password")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}

	opts := options{link: *link, username: *username, limit: *limit, password: *password}
	switch {
	case *host && *link != "":
		return options{}, errors.New("--host and --join are mutually exclusive")
	case *host:
		opts.role = roleHost
	case *link != "":
		opts.role = roleGuest
	default:
		return options{}, errors.New("one of --host or --join is required")
	}
	if opts.username == "" {
		return options{}, errors.New("--username is required")
	}
	return opts, nil
}

func newOpener(cfg config.Config, log *slog.Logger) tunnel.Opener {
	if cfg.TunnelMode == config.TunnelLocaltunnel {
		return &tunnel.Localtunnel{Server: cfg.TunnelServer, LocalHost: cfg.Host, Log: log}
	}
	return tunnel.Local{Host: cfg.Host}
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)

	db, err := database.Open(cfg.LedgerDSN)
	if err != nil {
		return fmt.Errorf("ledger opening failed: %w", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Error("failed to close ledger", "error", err)
		}
	}()

	sink := events.NewChannel(log, 256)
	a := app.New(app.Options{
		Host:       cfg.Host,
		PortMin:    cfg.PortMin,
		PortMax:    cfg.PortMax,
		ExtraConns: cfg.TunnelExtraConns,
		SendBuffer: cfg.SendBuffer,
		Opener:     newOpener(cfg, log),
		Codec:      joinlink.NewCodec(cfg.KeyDeriver()),
		DB:         db,
		Events:     sink,
		Handler:    relayHandler(cfg.Origins(), log),
		Log:        log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.role == roleHost {
		link, err := a.CreateChat(ctx, opts.username, opts.limit, opts.password)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Join link: %s\n", link)
		defer func() {
			if err := a.Shutdown(context.Background()); err != nil {
				log.Error("shutdown failed", "error", err)
			}
		}()
	} else {
		if err := a.JoinChat(ctx, opts.username, opts.link, opts.password); err != nil {
			return err
		}
		defer func() {
			if err := a.LeaveChat(); err != nil {
				log.Debug("leave failed", "error", err)
			}
		}()
	}

	return runShell(ctx, os.Stdin, os.Stdout, opts.role, a, sink.Events(), log)
}
