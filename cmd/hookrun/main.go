package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"hookrun/internal/config"
	"hookrun/internal/doctor"
	"hookrun/internal/lock"
	"hookrun/internal/log"
	"hookrun/internal/runner"
	"hookrun/internal/store"
	"hookrun/internal/tui"
	"hookrun/internal/webhook"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		os.Exit(runSystemNoun(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "delivery":
		os.Exit(runDeliveryNoun(args))

	// --- ROOT ALIASES ---
	case "start":
		os.Exit(runStart(args))
	case "doctor":
		os.Exit(runConfigCheck(args))
	case "version":
		fmt.Printf("hookrun version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`hookrun - HMAC-verified webhook receiver that runs your scripts

Usage:
  hookrun <noun> <action> [flags]

Core Resources (Nouns):
  system    Receiver lifecycle
  config    Configuration and integrity
  delivery  Delivery log inspection

System Commands:
  system start      Start the webhook receiver in foreground

Config Commands:
  config check      Validate configuration, scripts, and secrets
  config lock       Authorize current config (update integrity hash)

Delivery Commands:
  delivery list     Show recent deliveries
  delivery watch    Live delivery monitor

General:
  version           Show version information
  help              Show this help message

Configuration is discovered from --config, $HOOKRUN_CONFIG, ./hookrun.yaml,
or ~/.config/hookrun/hookrun.yaml. With no config file, a single endpoint is
built from WEBHOOK_SECRET and WEBHOOK_SCRIPT.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "help":
		printSystemNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "help":
		printConfigNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runDeliveryNoun(args []string) int {
	if len(args) < 1 {
		printDeliveryNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printDeliveryNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		if hasHelpFlag(actionArgs) {
			printDeliveryListHelp()
			return 0
		}
		return runDeliveryList(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printDeliveryWatchHelp()
			return 0
		}
		return runDeliveryWatch(actionArgs)
	case "help":
		printDeliveryNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown delivery action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hookrun system <action>")
	fmt.Fprintln(w, "Actions: start")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hookrun config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock")
}

func printDeliveryNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hookrun delivery <action> [flags]")
	fmt.Fprintln(w, "Actions: list, watch")
}

func printSystemStartHelp() {
	fmt.Println("Usage: hookrun system start [--config PATH]")
	fmt.Println("Start the webhook receiver in the foreground.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: hookrun config check [--config PATH] [--strict] [--json]")
	fmt.Println("Validate configuration, scripts, and secrets.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: hookrun config lock [--config PATH]")
	fmt.Println("Authorize the current configuration by writing its integrity hash.")
}

func printDeliveryListHelp() {
	fmt.Println("Usage: hookrun delivery list [--config PATH] [--limit N]")
	fmt.Println("Show recent deliveries, newest first.")
}

func printDeliveryWatchHelp() {
	fmt.Println("Usage: hookrun delivery watch [--config PATH]")
	fmt.Println("Live delivery monitor.")
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Discover(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("hookrun starting", "version", version, "listen", cfg.Listen)

	pidLockPath := getPIDLockPath(cfg)
	pidLock, err := lock.Acquire(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open delivery log", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("delivery log opened", "path", cfg.State.Path)

	deliveries := store.New(db)
	actions := runner.New(deliveries, log.WithComponent("runner"))

	webhookConfig, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		logger.Error("failed to configure webhook server", "error", err)
		return 1
	}
	server := webhook.New(webhookConfig, actions, log.WithComponent("webhook"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("webhook: %w", err)
		}
	}()

	logger.Info("hookrun running (press Ctrl+C to stop)", "endpoints", len(webhookConfig.Endpoints))

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		exitCode = 1
	}

	// Let in-flight actions finalize their delivery records
	actions.Wait()
	logger.Info("hookrun stopped")
	return exitCode
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	strict := fs.Bool("strict", false, "Treat warnings as errors")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Discover(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if *strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := resolveConfigFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	checksumPath, err := config.Lock(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	fmt.Printf("Locked %s\n", path)
	fmt.Printf("Wrote %s\n", checksumPath)
	return 0
}

func runDeliveryList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", 20, "Maximum number of deliveries to show")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	deliveries, db, err := openDeliveryLog(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	ctx, cancelCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCtx()

	list, err := deliveries.ListRecent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list deliveries: %v\n", err)
		return 1
	}

	if len(list) == 0 {
		fmt.Println("No deliveries recorded.")
		return 0
	}

	fmt.Printf("%-36s  %-10s  %-20s  %-5s  %s\n", "ID", "STATUS", "RECEIVED", "EXIT", "ENDPOINT")
	for _, d := range list {
		exit := "-"
		if d.ExitCode != nil {
			exit = fmt.Sprintf("%d", *d.ExitCode)
		}
		fmt.Printf("%-36s  %-10s  %-20s  %-5s  %s\n",
			d.ID, d.Status, d.ReceivedAt.Local().Format("2006-01-02 15:04:05"), exit, d.Endpoint)
	}
	return 0
}

func runDeliveryWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	deliveries, db, err := openDeliveryLog(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	p := tea.NewProgram(tui.NewMonitor(deliveries))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Watch failed: %v\n", err)
		return 1
	}
	return 0
}

// --- HELPERS ---

// openDeliveryLog loads config and opens the delivery log store.
func openDeliveryLog(configPath string) (*store.Store, interface{ Close() error }, error) {
	cfg, err := config.Discover(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	db, err := store.OpenSQLite(context.Background(), cfg.State.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open delivery log: %w", err)
	}
	return store.New(db), db, nil
}

// resolveConfigFile finds the config file for commands that need the file
// itself rather than the loaded configuration.
func resolveConfigFile(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	if p := os.Getenv("HOOKRUN_CONFIG"); p != "" {
		return p, nil
	}
	if _, err := os.Stat("./hookrun.yaml"); err == nil {
		return "./hookrun.yaml", nil
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "hookrun", "hookrun.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}
	return "", fmt.Errorf("no config file found (use --config PATH)")
}

func getPIDLockPath(cfg *config.Config) string {
	dbPath := cfg.State.Path
	dbDir := filepath.Dir(dbPath)
	dbBase := filepath.Base(dbPath)
	ext := filepath.Ext(dbBase)
	return filepath.Join(dbDir, dbBase[:len(dbBase)-len(ext)]+".pid")
}
