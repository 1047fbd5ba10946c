package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/duskline/crosstalk/internal/archive"
	"github.com/duskline/crosstalk/internal/bus"
	"github.com/duskline/crosstalk/internal/cast"
	"github.com/duskline/crosstalk/internal/channel"
	"github.com/duskline/crosstalk/internal/config"
	"github.com/duskline/crosstalk/internal/llm"
	"github.com/duskline/crosstalk/internal/point"
	"github.com/duskline/crosstalk/internal/studio"
)

// ShowOptions carries injectable dependencies for tests.
type ShowOptions struct {
	RuntimeFactory llm.RuntimeFactory
	Signals        <-chan os.Signal
}

var rootCmd = &cobra.Command{
	Use:   "crosstalk",
	Short: "crosstalk - two AI hosts talk a topic into the ground",
}

var runCmd = &cobra.Command{
	Use:   "run \"topic\"",
	Short: "Put a show on the air",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config, workspace, and cast sheet",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show crosstalk status",
	RunE:  runStatus,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List archived sessions or search past turns",
	RunE:  runSessions,
}

var replayCmd = &cobra.Command{
	Use:   "replay <session-id>",
	Short: "Print an archived transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

var (
	exchangesFlag int
	freshFlag     bool
	searchFlag    string
)

func init() {
	runCmd.Flags().IntVar(&exchangesFlag, "exchanges", 0, "End the show after this many exchanges (0 = run until interrupted)")
	runCmd.Flags().BoolVar(&freshFlag, "fresh", false, "Reset point state before starting")
	sessionsCmd.Flags().StringVar(&searchFlag, "search", "", "Full-text search over archived turns")
	rootCmd.AddCommand(runCmd, onboardCmd, statusCmd, sessionsCmd, replayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runShow is the command handler that uses default options
func runShow(cmd *cobra.Command, args []string) error {
	return runShowWithOptions(args[0], ShowOptions{})
}

// runShowWithOptions runs the show with injectable dependencies for testing
func runShowWithOptions(subject string, opts ShowOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Provider.APIKey == "" && opts.RuntimeFactory == nil {
		return fmt.Errorf("API key not set. Run 'crosstalk onboard' or set CROSSTALK_API_KEY / ANTHROPIC_API_KEY")
	}
	if exchangesFlag > 0 {
		cfg.Show.MaxExchanges = exchangesFlag
	}

	signals := opts.Signals
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	s, err := studio.New(studio.Options{
		Config:         cfg,
		Subject:        subject,
		Fresh:          freshFlag,
		RuntimeFactory: opts.RuntimeFactory,
		Signals:        signals,
	})
	if err != nil {
		return err
	}
	return s.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.Workspace, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	castPath := filepath.Join(cfg.Workspace, "cast.yaml")
	if _, err := os.Stat(castPath); os.IsNotExist(err) {
		if err := cast.WriteDefault(castPath); err != nil {
			return fmt.Errorf("write cast sheet: %w", err)
		}
		fmt.Printf("  Created: %s\n", castPath)
	}

	fmt.Printf("Workspace ready: %s\n", cfg.Workspace)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set CROSSTALK_API_KEY environment variable")
	fmt.Printf("  3. Edit %s to rename the hosts\n", castPath)
	fmt.Println("  4. Run 'crosstalk run \"why cities ban cars\"' to go on air")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Workspace: %s\n", cfg.Workspace)
	fmt.Printf("Model: %s\n", cfg.Model.Name)
	fmt.Printf("Provider: %s\n", providerDisplay(cfg.Provider.Type))
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}

	if sheet, err := cast.Load(cfg.Show.CastPath); err != nil {
		fmt.Printf("Cast: error (%v)\n", err)
	} else {
		fmt.Printf("Cast: %s and %s (interns: %s)\n",
			sheet.Hosts[0].Name, sheet.Hosts[1].Name, strings.Join(sheet.InternNames(), ", "))
	}
	fmt.Printf("Console: enabled=%v\n", cfg.Channels.Console.Enabled)
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)

	switch {
	case !cfg.Archive.Enabled:
		fmt.Println("Archive: disabled")
	default:
		if _, err := os.Stat(cfg.Archive.DBPath); err != nil {
			fmt.Println("Archive: empty (no shows archived yet)")
			break
		}
		arch, err := archive.Open(cfg.Archive.DBPath)
		if err != nil {
			fmt.Printf("Archive: error (%v)\n", err)
			break
		}
		defer arch.Close()
		if stats, err := arch.Stats(); err == nil {
			fmt.Printf("Archive: %d sessions, %d turns\n", stats.Sessions, stats.Turns)
		}
	}

	statePath := filepath.Join(config.ConfigDir(), "point.json")
	if state, err := point.NewFileStore(statePath).Load(); err == nil && state != nil {
		fmt.Printf("Point: %q at %.0f%% saturation after %d exchanges\n",
			state.Essence, state.Saturation*100, state.ExchangeCount)
	} else {
		fmt.Println("Point: no saved state")
	}

	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	arch, err := archive.Open(cfg.Archive.DBPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer arch.Close()

	if searchFlag != "" {
		hits, err := arch.Search(searchFlag, 20)
		if err != nil {
			return fmt.Errorf("search archive: %w", err)
		}
		if len(hits) == 0 {
			fmt.Printf("No turns matching %q\n", searchFlag)
			return nil
		}
		for _, hit := range hits {
			fmt.Printf("%s  %s  %s: %s\n",
				hit.SessionID,
				hit.SpokenAt.Local().Format("2006-01-02 15:04"),
				hit.Speaker, truncate(hit.Text, 100))
		}
		return nil
	}

	sessions, err := arch.RecentSessions(10)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No archived sessions yet. Run 'crosstalk run \"topic\"' to start one.")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %s  %3d exchanges  %s\n",
			s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), s.Exchanges, s.Subject)
	}
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	arch, err := archive.Open(cfg.Archive.DBPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer arch.Close()

	sum, err := arch.SessionSummary(args[0])
	if err != nil {
		return err
	}
	turns, err := arch.Transcript(args[0])
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	if len(turns) == 0 {
		fmt.Println("Session has no archived turns.")
		return nil
	}

	fmt.Printf("Replaying %q (%d exchanges, %s)\n",
		sum.Session.Subject, sum.Session.Exchanges,
		sum.Session.StartedAt.Local().Format("2006-01-02 15:04"))

	console := channel.NewConsole(nil)
	for _, turn := range turns {
		event := bus.TurnEvent{
			SessionID: sum.Session.ID,
			Subject:   sum.Session.Subject,
			Turn:      turn,
		}
		if err := console.Deliver(event); err != nil {
			return fmt.Errorf("print turn: %w", err)
		}
	}
	return nil
}

func providerDisplay(t string) string {
	if t == "" {
		return "anthropic (default)"
	}
	return t
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
