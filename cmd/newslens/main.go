package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/newslens/internal/config"
	"github.com/TobiSchelling/newslens/internal/logging"
	"github.com/TobiSchelling/newslens/internal/news"
	"github.com/TobiSchelling/newslens/internal/pipeline"
	"github.com/TobiSchelling/newslens/internal/publish"
	"github.com/TobiSchelling/newslens/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "newslens",
	Short:   "Bias-aware news analysis",
	Long:    "newslens collects coverage of a topic from Swedish outlets, summarizes each side of the political spectrum and writes a neutral synthesis.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logging.Setup("info", "text", verbose)
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logging.Setup(cfg.Logging.Level, cfg.Logging.Format, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(republishCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newslens", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/newslens/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources, API keys, and the LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Store: %s (%s)\n\n", storeTarget(), db.Dialect())
		fmt.Println("Documents:")
		fmt.Printf("  Total: %d\n", stats.Documents)
		fmt.Printf("  Last added: %s\n", formatLast(stats.LastDocumentAt))
		fmt.Println("\nReports:")
		fmt.Printf("  Total: %d\n", stats.Reports)
		fmt.Printf("  Last run: %s\n", formatLast(stats.LastReportAt))
		fmt.Println("\nSources:")
		for _, s := range cfg.Sources {
			fmt.Printf("  %-16s %-20s %s\n", s.Domain, s.Name, s.Bias)
		}
		fmt.Println("\nPublishing:")
		if cfg.WordPressEnabled() {
			fmt.Printf("  WordPress: %s\n", cfg.WordPress.URL)
		} else {
			fmt.Println("  WordPress: not configured")
		}
		return nil
	},
}

func formatLast(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// --- process command ---

var (
	topicTitle       string
	topicURL         string
	topicDescription string
	publishResult    bool
	dryRun           bool
	jsonOutput       bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Analyze a topic: discover -> retrieve context -> summarize -> store -> publish",
	RunE: func(cmd *cobra.Command, args []string) error {
		input := news.ProcessingInput{
			Title:       topicTitle,
			URL:         topicURL,
			Description: topicDescription,
		}
		if input.Empty() {
			return news.ErrNoInput
		}

		timeout := cfg.Pipeline.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var res *pipeline.Result
		if dryRun {
			res, err = a.pipeline.DryRun(ctx, input)
		} else {
			res, err = a.pipeline.Run(ctx, input, pipeline.WithPublish(publishResult))
		}
		if err != nil {
			return err
		}

		if jsonOutput && res.Processing != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res.Processing)
		}

		printSteps(res.Steps)
		if res.Processing != nil {
			printResult(res.Processing)
		}
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&topicTitle, "title", "", "Topic title")
	processCmd.Flags().StringVar(&topicURL, "url", "", "URL of an article about the topic")
	processCmd.Flags().StringVar(&topicDescription, "description", "", "Topic description")
	processCmd.Flags().BoolVar(&publishResult, "publish", false, "Publish the result to WordPress")
	processCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without generating or storing")
	processCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
}

func printSteps(steps []pipeline.StepResult) {
	for i, step := range steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		}
		if step.Summary != "" {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

func printResult(r *news.ProcessingResult) {
	fmt.Printf("\n%s\n%s\n", r.Topic, strings.Repeat("=", len([]rune(r.Topic))))
	if r.IsError() {
		fmt.Printf("\n%s\n", r.Neutral.Summary)
		return
	}
	for _, s := range r.BiasSummaries {
		fmt.Printf("\n[%s] %d articles %v\n%s\n", s.Bias, s.ArticleCount, s.SourceNames, s.Summary)
	}
	fmt.Printf("\nNeutral:\n%s\n", r.Neutral.Summary)
	if len(r.Neutral.KeyFacts) > 0 {
		fmt.Println("\nKey facts:")
		for _, f := range r.Neutral.KeyFacts {
			fmt.Printf("  - %s\n", f)
		}
	}
	if r.PublishID != nil {
		fmt.Printf("\nPublished as post %s\n", *r.PublishID)
	}
}

// --- monitor command ---

var (
	monitorHours    int
	monitorMaxItems int
	monitorEvery    time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Store recent RSS items from all sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.feedMonitor(ctx)
		if err != nil {
			return err
		}

		hours := monitorHours
		if hours <= 0 {
			hours = cfg.Monitor.WindowHours
		}
		maxItems := monitorMaxItems
		if maxItems <= 0 {
			maxItems = cfg.Monitor.MaxItems
		}
		window := time.Duration(hours) * time.Hour

		if monitorEvery > 0 {
			fmt.Printf("Monitoring every %s (Ctrl+C to stop)\n", monitorEvery)
			err := m.Loop(ctx, monitorEvery, window, maxItems)
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		res, err := m.Run(ctx, window, maxItems)
		if err != nil {
			return err
		}
		fmt.Println("\nMonitor pass complete:")
		fmt.Printf("  Items in window: %d\n", res.ItemsFound)
		fmt.Printf("  Items stored: %d\n", res.ItemsProcessed)
		fmt.Printf("  Duration: %s\n", res.Duration.Round(time.Millisecond))
		return nil
	},
}

func init() {
	monitorCmd.Flags().IntVar(&monitorHours, "hours", 0, "Window in hours (default from config)")
	monitorCmd.Flags().IntVar(&monitorMaxItems, "max-items", 0, "Maximum items to store per pass (default from config)")
	monitorCmd.Flags().DurationVar(&monitorEvery, "every", 0, "Repeat at this interval instead of running once")
}

// --- recent command ---

var recentLimit int

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recently stored documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.store.Recent(ctx, recentLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("The store is empty. Run 'newslens process' or 'newslens monitor' first.")
			return nil
		}
		for _, e := range entries {
			title := e.Title()
			if title == "" {
				title = news.Preview(e.Content, 60)
			}
			fmt.Printf("  %s  %-8s %s\n", e.CreatedAt.UTC().Format("2006-01-02 15:04"), e.Metadata["political_bias"], title)
			if u := e.URL(); u != "" {
				fmt.Printf("  %16s %s\n", "", u)
			}
		}
		return nil
	},
}

func init() {
	recentCmd.Flags().IntVarP(&recentLimit, "number", "n", 10, "Number of documents to show")
}

// --- republish command ---

var republishCmd = &cobra.Command{
	Use:   "republish <report-id>",
	Short: "Push a stored report to WordPress again, updating its post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.publisher == nil {
			return publish.ErrNotConfigured
		}
		rep, err := a.db.GetReport(ctx, args[0])
		if err != nil {
			return err
		}
		if rep == nil {
			return fmt.Errorf("report %s not found", args[0])
		}

		var r news.ProcessingResult
		if err := json.Unmarshal([]byte(rep.ResultJSON), &r); err != nil {
			return fmt.Errorf("decoding report %s: %w", rep.ID, err)
		}

		var postID string
		if rep.PublishID != nil {
			postID = *rep.PublishID
		}
		id, err := a.publisher.Republish(ctx, postID, &r)
		if err != nil {
			return err
		}
		rep.PublishID = &id
		if err := a.db.InsertReport(ctx, *rep); err != nil {
			return err
		}

		fmt.Printf("Report %s published as post %s\n", rep.ID, id)
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and report viewer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		deps := server.Deps{
			Pipeline:        a.pipeline,
			Store:           a.store,
			Reports:         a.db,
			Version:         version,
			AllowedOrigins:  cfg.Server.AllowedOrigins,
			Timeout:         cfg.Pipeline.Timeout,
			MonitorWindow:   time.Duration(cfg.Monitor.WindowHours) * time.Hour,
			MonitorMaxItems: cfg.Monitor.MaxItems,
		}
		if m, err := a.feedMonitor(ctx); err == nil {
			deps.Monitor = m
		} else {
			fmt.Printf("Feed monitor disabled: %v\n", err)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, deps, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}
