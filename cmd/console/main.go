// Command console is a terminal client for the mission control backend: it
// lists missions, follows the live event stream, and reconciles mission
// history into a readable timeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/sandboxed-sh/console/internal/api"
	"github.com/sandboxed-sh/console/internal/config"
	"github.com/sandboxed-sh/console/internal/console"
	"github.com/sandboxed-sh/console/internal/missioncache"
	"github.com/sandboxed-sh/console/internal/stream"
	"github.com/sandboxed-sh/console/pkg/logger"
)

const version = "console v0.3.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	args, err := parseFlags(cfg, os.Args[1:])
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	if len(args) == 0 {
		return watchCommand(cfg, "")
	}

	switch args[0] {
	case "watch":
		missionID := ""
		if len(args) > 1 {
			missionID = args[1]
		}
		return watchCommand(cfg, missionID)
	case "missions":
		return missionsCommand(cfg)
	case "running":
		return runningCommand(cfg)
	case "send":
		if len(args) < 2 {
			return errors.New("usage: console send <message>")
		}
		return sendCommand(cfg, strings.Join(args[1:], " "))
	case "version", "--version", "-v":
		fmt.Println(version)
		return nil
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func parseFlags(cfg *config.Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	fs.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "backend base URL")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "bearer token")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (trace|debug|info|warn|error)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")
	fs.Usage = printUsage
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return fs.Args(), nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: console [flags] <command>

Commands:
  watch [mission-id]   follow the live event stream (default command)
  missions             list missions
  running              list currently running missions
  send <message>       send a message to the control session
  version              print version

Flags:
  -server URL          backend base URL (env CONSOLE_SERVER_URL)
  -token TOKEN         bearer token (env CONSOLE_TOKEN)
  -log-level LEVEL     log level (env CONSOLE_LOG_LEVEL)
  -debug               shorthand for -log-level debug
`)
}

func missionsCommand(cfg *config.Config) error {
	client := api.NewClient(cfg.ServerURL, cfg.Token)
	defer client.Close()

	missions, err := client.ListMissions(context.Background())
	if err != nil {
		return err
	}
	if len(missions) == 0 {
		fmt.Println("no missions")
		return nil
	}
	for _, m := range missions {
		title := m.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %-12s  %s\n", m.ID, m.Status, title)
	}
	return nil
}

func runningCommand(cfg *config.Config) error {
	client := api.NewClient(cfg.ServerURL, cfg.Token)
	defer client.Close()

	running, err := client.ListRunning(context.Background())
	if err != nil {
		return err
	}
	if len(running) == 0 {
		fmt.Println("no running missions")
		return nil
	}
	for _, r := range running {
		fmt.Printf("%s  %-16s  queue=%d  idle=%ds\n",
			r.MissionID, r.State, r.QueueLen, r.SecondsSinceActivity)
	}
	return nil
}

func sendCommand(cfg *config.Config, content string) error {
	client := api.NewClient(cfg.ServerURL, cfg.Token)
	defer client.Close()

	receipt, err := client.SendMessage(context.Background(), content, "")
	if err != nil {
		return err
	}
	fmt.Printf("queued as %s\n", receipt.ID)
	return nil
}

func watchCommand(cfg *config.Config, missionID string) error {
	if err := os.MkdirAll(cfg.ConsoleHome, 0700); err != nil {
		return fmt.Errorf("failed to create home dir: %w", err)
	}

	client := api.NewClient(cfg.ServerURL, cfg.Token)
	defer client.Close()

	cache, err := missioncache.New(cfg.CacheDir(), cfg.CacheCapacity)
	if err != nil {
		return fmt.Errorf("failed to open mission cache: %w", err)
	}

	p := newPrinter(os.Stdout)
	con := console.New(client, cache, console.Options{
		OnChange: p.Observe,
	})
	con.Start()
	defer con.Stop()

	conn := stream.New(&stream.SocketDialer{ServerURL: cfg.ServerURL, Token: cfg.Token})
	con.AttachStream(conn)
	defer conn.Dispose()

	if missionID != "" {
		con.SwitchTo(missionID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := console.NewTracker(client, con, cfg.PollInterval)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return conn.Run(ctx) })
	g.Go(func() error { return tracker.Run(ctx) })
	g.Go(func() error { return p.Run(ctx) })

	logger.Infof("watching %s (Ctrl+C to exit)", cfg.ServerURL)
	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, stream.ErrDisposed) {
		return nil
	}
	return err
}
