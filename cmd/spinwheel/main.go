// ABOUTME: Entry point for the spinwheel server and maintenance commands
// ABOUTME: Loads .env and config, sets up logging, and dispatches subcommands

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/spinwheel/internal/app"
	"github.com/2389/spinwheel/internal/config"
	"github.com/2389/spinwheel/internal/history"
	"github.com/2389/spinwheel/internal/server"
	"github.com/2389/spinwheel/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _                  _               _
 ___ _ __ (_)_ __   __      _| |__   ___  ___| |
/ __| '_ \| | '_ \  \ \ /\ / / '_ \ / _ \/ _ \ |
\__ \ |_) | | | | |  \ V  V /| | | |  __/  __/ |
|___/ .__/|_|_| |_|   \_/\_/ |_| |_|\___|\___|_|
    |_|
`

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: spinwheel <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                  Start the HTTP server")
	fmt.Fprintln(w, "  init [--force]         Write the default config file")
	fmt.Fprintln(w, "  settings               Print the persisted settings")
	fmt.Fprintln(w, "  history [--clear]      Print or clear the persisted history")
	fmt.Fprintln(w, "  version                Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		os.Exit(1)
	}

	// A missing .env is normal outside development
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdout, config.Path(), args)
	case "settings":
		err = runSettings(ctx, os.Stdout)
	case "history":
		err = runHistory(ctx, os.Stdout, args)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	configPath := config.Path()
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Storage:   %s ", cfg.Storage.Path)
	cyan.Printf("[%s]\n", cfg.Storage.Origin)
	green.Print("    ▶ ")
	fmt.Printf("Sync:      %s", cfg.Sync.Backend)
	if cfg.Sync.Backend == config.SyncNATS {
		gray.Printf(" (%s)", cfg.Sync.NATSURL)
	}
	fmt.Println()
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   %s\n", cfg.Metrics.Path)
	}
	fmt.Println()

	logger.Info("starting spinwheel",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"origin", cfg.Storage.Origin,
	)

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return srv.Run(ctx)
}

// runInit writes config.Template to path, refusing to overwrite an
// existing file unless --force is given.
func runInit(w io.Writer, path string, args []string) error {
	force := false
	for _, arg := range args {
		switch arg {
		case "--force", "-f":
			force = true
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.Template), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	color.New(color.FgGreen).Fprint(w, "✓ ")
	fmt.Fprintf(w, "Wrote %s\n", path)
	return nil
}

// openShell opens the configured storage area and a shell over it without
// event sync. The returned close func releases both.
func openShell(ctx context.Context, cfg *config.Config) (*app.App, store.Storage, func(), error) {
	s, err := store.NewSQLiteStore(cfg.Storage.Path, cfg.Storage.Origin)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}
	shell, err := app.New(ctx, app.Deps{Storage: s})
	if err != nil {
		_ = s.Close()
		return nil, nil, nil, fmt.Errorf("creating app: %w", err)
	}
	return shell, s, func() {
		_ = shell.Close()
		_ = s.Close()
	}, nil
}

func runSettings(ctx context.Context, w io.Writer) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	slog.SetDefault(setupLogger(config.LoggingConfig{Level: "warn"}))

	shell, storage, closeShell, err := openShell(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeShell()

	keys, err := storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("listing stored keys: %w", err)
	}
	stored := "(none)"
	if len(keys) > 0 {
		stored = strings.Join(keys, ", ")
	}

	s := shell.Settings().Settings()
	printField(w, "Origin", storage.Origin())
	printField(w, "Stored keys", stored)
	printField(w, "Selection type", string(s.SelectionType))
	printField(w, "Exclude winners", fmt.Sprint(s.ExcludePreviousWinners))
	printField(w, "Animation", fmt.Sprintf("%dms", s.AnimationDuration))
	printField(w, "Dark mode", fmt.Sprint(s.IsDarkMode))
	return nil
}

func runHistory(ctx context.Context, w io.Writer, args []string) error {
	clearAll, asJSON := false, false
	for _, arg := range args {
		switch arg {
		case "--clear":
			clearAll = true
		case "--json":
			asJSON = true
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	slog.SetDefault(setupLogger(config.LoggingConfig{Level: "warn"}))

	shell, _, closeShell, err := openShell(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeShell()

	if clearAll {
		n := len(shell.History().History())
		shell.History().ClearHistory(ctx)
		color.New(color.FgGreen).Fprint(w, "✓ ")
		fmt.Fprintf(w, "Cleared %d entries\n", n)
		return nil
	}

	entries := shell.History().History()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	fmt.Fprint(w, history.Markdown(entries))
	return nil
}

func printField(w io.Writer, label, value string) {
	color.New(color.FgGreen).Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "%-16s %s\n", label+":", value)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			out:   os.Stderr,
			mu:    &sync.Mutex{},
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	out    io.Writer
	mu     *sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	writeAttr := func(prefix string, a slog.Attr) {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	for _, a := range h.attrs {
		writeAttr("", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(prefix, a)
		return true
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		out:    h.out,
		mu:     h.mu,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		out:    h.out,
		mu:     h.mu,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
