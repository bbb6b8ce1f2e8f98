package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/asheshgoplani/termdeck/internal/activity"
	"github.com/asheshgoplani/termdeck/internal/config"
	"github.com/asheshgoplani/termdeck/internal/controller"
	"github.com/asheshgoplani/termdeck/internal/logging"
	"github.com/asheshgoplani/termdeck/internal/statedb"
	"github.com/asheshgoplani/termdeck/internal/ui"
	"github.com/asheshgoplani/termdeck/internal/watch"
	"github.com/asheshgoplani/termdeck/internal/web"
)

const Version = "0.1.0"

func init() {
	initColorProfile()
}

// initColorProfile configures lipgloss color output. TERMDECK_COLOR
// overrides auto-detection: truecolor, 256, 16, none.
func initColorProfile() {
	if colorEnv := os.Getenv("TERMDECK_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
		}
		return
	}

	if colorTerm := os.Getenv("COLORTERM"); colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
	}
}

func main() {
	fs := flag.NewFlagSet("termdeck", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default ~/.termdeck/config.toml)")
	theme := fs.String("theme", "", "Color theme: dark, light, system (overrides config)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	showVersion := fs.Bool("version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Println("Usage: termdeck [options] [command]")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  sessions       List persisted sessions")
		fmt.Println("  run <command>  Run a command attached to the current terminal")
		fmt.Println("  (none)         Start the TUI")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("termdeck %s\n", Version)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "termdeck: %v\n", err)
		os.Exit(1)
	}

	baseDir, err := config.Dir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "termdeck: %v\n", err)
		os.Exit(1)
	}

	logDebug := *debug || cfg.Logs.Debug
	logging.Init(logging.Config{
		LogDir: filepath.Join(baseDir, "logs"),
		Level:  cfg.Logs.Level,
		Debug:  logDebug,
	})
	defer logging.Shutdown()

	if *theme != "" {
		cfg.Theme = *theme
	}
	ui.InitTheme(cfg.ResolveTheme())

	db, err := statedb.Open(filepath.Join(baseDir, "state.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "termdeck: state db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "termdeck: migrate: %v\n", err)
		os.Exit(1)
	}

	switch fs.Arg(0) {
	case "":
		if err := runTUI(cfg, db); err != nil {
			fmt.Fprintf(os.Stderr, "termdeck: %v\n", err)
			os.Exit(1)
		}
	case "sessions":
		if err := listSessions(db); err != nil {
			fmt.Fprintf(os.Stderr, "termdeck: %v\n", err)
			os.Exit(1)
		}
	case "run":
		if err := runDirect(fs.Args()[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "termdeck: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "termdeck: unknown command %q\n", fs.Arg(0))
		fs.Usage()
		os.Exit(2)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// listSessions prints persisted sessions as a table.
func listSessions(db *statedb.StateDB) error {
	sessions, err := db.ListSessions()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSTATUS\tAGENT\tCOMMAND\tCWD\tLAST SEEN")
	for _, s := range sessions {
		command := s.Command
		if command == "" {
			command = "(shell)"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\n",
			s.Key, s.LastStatus, s.Agent, command, s.Cwd,
			s.LastSeenAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runTUI(cfg *config.Config, db *statedb.StateDB) error {
	mainLog := logging.ForComponent(logging.CompUI)

	frames := ui.NewTeaFrames()
	app := ui.NewApp(nil, frames, cfg.Scrollback)

	sup := newSupervisorBridge()

	warmup, suppression, idle := cfg.ActivityDurations()
	ctrl := controller.New(controller.Options{
		Supervisor: sup,
		Recorder:   db,
		Ports:      app.MakePort,
		Frames:     frames,
		Activity: activity.Config{
			Warmup:           warmup,
			InputSuppression: suppression,
			IdleTimeout:      idle,
		},
	})
	app.SetController(ctrl)
	defer ctrl.CloseAll()

	if watcher, err := watch.NewPlanWatcher(func(key, path string) {
		sup.send(ui.PlanMsg{Key: key, Path: path})
	}); err != nil {
		mainLog.Warn("plan_watcher_disabled", slog.String("error", err.Error()))
	} else {
		sup.watcher = watcher
		defer watcher.Stop()
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = os.TempDir()
	}
	for _, name := range orderedSessionKeys(cfg) {
		def := cfg.Sessions[name]
		dir := def.Cwd
		if dir == "" {
			dir = cwd
		}
		sup.rememberCwd(name, dir)
		if err := ctrl.Open(name, dir, def.Command, def.Env, def.Agent); err != nil {
			mainLog.Warn("session_open_failed",
				slog.String("session", name),
				slog.String("error", err.Error()))
		}
	}
	if len(cfg.Sessions) == 0 {
		sup.rememberCwd("shell", cwd)
		if err := ctrl.Open("shell", cwd, "", nil, false); err != nil {
			mainLog.Warn("session_open_failed",
				slog.String("session", "shell"),
				slog.String("error", err.Error()))
		}
	}

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	frames.Bind(p)
	sup.bind(p.Send)

	var webCancel context.CancelFunc
	if cfg.Web.Enabled {
		srv := web.NewServer(web.Config{
			ListenAddr: cfg.Web.ListenAddr,
			ReadOnly:   cfg.Web.ReadOnly,
			Token:      cfg.Web.Token,
		}, ctrl)
		var ctx context.Context
		ctx, webCancel = context.WithCancel(context.Background())
		go func() {
			if err := srv.Run(ctx); err != nil {
				mainLog.Error("web_server_failed", slog.String("error", err.Error()))
			}
		}()
		mainLog.Info("web_listening", slog.String("addr", srv.Addr()))
	}

	_, runErr := p.Run()
	if webCancel != nil {
		webCancel()
	}
	return runErr
}

// orderedSessionKeys returns configured session names sorted, so startup
// order (and the initial tab order) is deterministic.
func orderedSessionKeys(cfg *config.Config) []string {
	keys := make([]string, 0, len(cfg.Sessions))
	for name := range cfg.Sessions {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}
