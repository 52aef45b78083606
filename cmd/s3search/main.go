// Package main is the s3search CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nrcae/ai-s3-search/internal/cli"
	"github.com/nrcae/ai-s3-search/internal/config"
	"github.com/nrcae/ai-s3-search/internal/ingest"
	"github.com/nrcae/ai-s3-search/internal/models"
	"github.com/nrcae/ai-s3-search/internal/server"
	"github.com/nrcae/ai-s3-search/internal/storage"
	"github.com/nrcae/ai-s3-search/internal/watcher"
	"github.com/nrcae/ai-s3-search/pkg/utils"
)

var version = "dev"

const defaultConfigFile = "config.yaml"

type rootOptions struct {
	configPath string
	debug      bool
	logLevel   string
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "s3search",
		Short: "Semantic search over documents stored in S3",
		Long: `s3search ingests documents from an S3 bucket (or a local directory), embeds
their text in overlapping word windows, and answers natural-language queries
with the most similar passages.

Example usage:
  s3search serve                         # ingest in the background and serve the HTTP API
  s3search index                         # run one ingestion pass with a progress bar
  s3search search "quarterly revenue"    # query a running server`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is ./config.yaml when present)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "production log level: debug, info, warn or error (ignored with --debug)")

	root.AddCommand(
		newServeCmd(opts),
		newIndexCmd(opts),
		newSearchCmd(opts),
		newStatusCmd(opts),
		newInitCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads the config at path. With no path, ./config.yaml is used when it
// exists and the built-in defaults otherwise.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func setup(opts *rootOptions) (*config.Config, *zap.Logger, error) {
	cfg, path, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || opts.debug
	var logger *zap.Logger
	if opts.logLevel != "" && !debug {
		logger, err = utils.NewLoggerWithLevel(opts.logLevel)
	} else {
		logger, err = utils.NewLogger(debug)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", path), zap.Bool("debug", debug))
	return cfg, logger, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and background ingestion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			components, err := initializeComponents(ctx, cfg, logger, componentOptions{withSource: true})
			if err != nil {
				return err
			}
			defer components.Close()
			return runServer(ctx, cfg, logger, components)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, c *Components) error {
	if cfg.Ingest.OnStartOrDefault() && (c.Restored == 0 || cfg.Ingest.RescanOnStart) {
		if err := c.Coordinator.Trigger(); err != nil {
			logger.Warn("startup ingestion not started", zap.Error(err))
		}
	} else if c.Restored > 0 {
		logger.Info("serving journaled records, startup ingestion skipped", zap.Int("records", c.Restored))
	}

	if c.Dir != nil && cfg.Watch.Enabled {
		w := watcher.New(c.Dir.Root(), watchFilter(c), watchHandler(ctx, c, logger),
			watcher.WithLogger(logger), watcher.WithDebounce(cfg.Watch.Debounce))
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer w.Stop()
	}

	var diskPaths []string
	if c.Journal != nil {
		diskPaths = append(diskPaths, cfg.Storage.JournalPath)
	}
	srv := server.NewServer(c.Search, &cfg.Server, logger,
		server.WithDiskPaths(diskPaths...),
		server.WithStatusInfo(map[string]any{
			"source_type":          cfg.Source.Type,
			"vector_index_type":    cfg.Vector.Index,
			"metric":               cfg.Vector.Metric,
			"embedding_dimensions": cfg.Embedding.Dimensions,
			"chunk_size":           cfg.Ingest.ChunkSize,
			"chunk_overlap":        cfg.Ingest.ChunkOverlap,
		}),
	)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
	if err := c.Coordinator.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ingestion did not stop in time", zap.Error(err))
	}
	return nil
}

// watchFilter accepts paths whose source key passes the include and exclude patterns
// and whose extension has a registered extractor.
func watchFilter(c *Components) func(string) bool {
	return func(path string) bool {
		key, ok := c.Dir.Key(path)
		return ok && c.Dir.Matches(key) && c.Extractor.Supports(key)
	}
}

// watchHandler ingests changed files. While another run is in flight the batch is
// returned to the watcher and retried.
func watchHandler(ctx context.Context, c *Components, logger *zap.Logger) watcher.ChangeFunc {
	return func(paths []string) error {
		keys := make([]string, 0, len(paths))
		for _, p := range paths {
			if key, ok := c.Dir.Key(p); ok {
				keys = append(keys, key)
			}
		}
		if len(keys) == 0 {
			return nil
		}
		rep, err := c.Coordinator.IngestKeys(ctx, keys)
		if err != nil {
			if errors.Is(err, ingest.ErrAlreadyRunning) {
				return err
			}
			logger.Warn("watch ingestion failed", zap.Strings("keys", keys), zap.Error(err))
			return nil
		}
		logger.Info("watch ingestion finished",
			zap.Int("documents", rep.Documents), zap.Int("records_added", rep.RecordsAdded))
		return nil
	}
}

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var (
		output string
		reset  bool
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run one ingestion pass over the configured source",
		Long: `Run one ingestion pass over the configured source. Records are journaled to
storage.journal_path so a later "s3search serve" starts with them. Documents
already in the journal are skipped unless --reset clears it first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if !cfg.Storage.PersistOrDefault() {
				logger.Warn("storage.persist is false, indexed records will not be kept")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			progress := newProgress(cmd.ErrOrStderr(), format == cli.OutputText)
			components, err := initializeComponents(ctx, cfg, logger, componentOptions{
				withSource:   true,
				progress:     progress.update,
				resetJournal: reset,
			})
			if err != nil {
				return err
			}
			defer components.Close()

			rep, err := components.Coordinator.Run(ctx)
			progress.finish()
			if err != nil {
				return err
			}
			logJournalTotals(ctx, components.Journal, logger)
			return cli.WriteReport(cmd.OutOrStdout(), rep, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	cmd.Flags().BoolVar(&reset, "reset", false, "clear the journal and re-ingest every document")
	return cmd
}

func logJournalTotals(ctx context.Context, j *storage.SQLiteJournal, logger *zap.Logger) {
	if j == nil {
		return
	}
	records, err := j.Count(ctx)
	if err != nil {
		logger.Warn("failed to count journaled records", zap.Error(err))
		return
	}
	sources, err := j.CountSources(ctx)
	if err != nil {
		logger.Warn("failed to count journaled documents", zap.Error(err))
		return
	}
	logger.Info("journal totals", zap.Int64("records", records), zap.Int64("documents", sources))
}

// progress renders a progress bar once the document total is known.
type progress struct {
	mu      sync.Mutex
	out     io.Writer
	enabled bool
	bar     *progressbar.ProgressBar
}

func newProgress(out io.Writer, enabled bool) *progress {
	return &progress{out: out, enabled: enabled}
}

func (p *progress) update(done, total int) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	_ = p.bar.Set(done)
}

func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		fmt.Fprintln(p.out)
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		serverURL string
		topK      int
		sourceID  string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search ingested documents",
		Long: `Search ingested documents. The query is all arguments joined by spaces.
With --server "" the journaled records are searched directly, without a server.

Examples:
  s3search search quarterly revenue
  s3search search --top-k 10 --source reports/q1.pdf "net margin"
  s3search search --output json "employee handbook"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			query := models.SearchQuery{Query: buildSearchQuery(args), TopK: topK, SourceID: sourceID}
			if query.Query == "" {
				return errors.New("query cannot be empty")
			}

			start := time.Now()
			var res *cli.SearchResults
			if serverURL != "" {
				res, err = searchViaHTTP(cmd.Context(), serverURL, query)
			} else {
				res, err = searchLocal(cmd.Context(), opts, query)
			}
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if res.Took == 0 {
				res.Took = time.Since(start)
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), res, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", `server URL (use "" to search the journal directly)`)
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (default from config)")
	cmd.Flags().StringVar(&sourceID, "source", "", "only return passages from this document key")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, compact or json")
	return cmd
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func searchLocal(ctx context.Context, opts *rootOptions, query models.SearchQuery) (*cli.SearchResults, error) {
	cfg, logger, err := setup(opts)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{})
	if err != nil {
		return nil, err
	}
	defer components.Close()

	hits, err := components.Search.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return &cli.SearchResults{Query: query.Query, Results: hits}, nil
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var serverURL, output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index readiness and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			var st models.Status
			if serverURL != "" {
				st, err = statusViaHTTP(cmd.Context(), serverURL)
			} else {
				st, err = statusLocal(cmd.Context(), opts)
			}
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			return cli.WriteStatus(cmd.OutOrStdout(), st, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", `server URL (use "" to read the journal directly)`)
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func statusLocal(ctx context.Context, opts *rootOptions) (models.Status, error) {
	cfg, logger, err := setup(opts)
	if err != nil {
		return models.Status{}, err
	}
	defer logger.Sync()
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{})
	if err != nil {
		return models.Status{}, err
	}
	defer components.Close()
	return components.Search.Status(), nil
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigFile
			if opts.configPath != "" {
				path = opts.configPath
			}
			if len(args) > 0 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			abs, _ := filepath.Abs(path)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", abs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "s3search version %s\n", version)
		},
	}
}
