package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/batchdl/pkg/batch"
	"github.com/Sternrassler/batchdl/pkg/cache"
	"github.com/Sternrassler/batchdl/pkg/client"
	"github.com/Sternrassler/batchdl/pkg/config"
	"github.com/Sternrassler/batchdl/pkg/fetch"
	"github.com/Sternrassler/batchdl/pkg/logging"
	"github.com/Sternrassler/batchdl/pkg/manager"
	"github.com/Sternrassler/batchdl/pkg/metrics"
	"github.com/Sternrassler/batchdl/pkg/persist"
	"github.com/Sternrassler/batchdl/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Exit codes.
const (
	exitOK       = 0
	exitNotSaved = 1
	exitUsage    = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// batchList collects batch numbers from repeated or comma separated flags.
// Ranges are written as "3-5".
type batchList []int

func (b *batchList) String() string {
	parts := make([]string, len(*b))
	for i, n := range *b {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func (b *batchList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		from, err := strconv.Atoi(lo)
		if err != nil || from < 1 {
			return fmt.Errorf("invalid batch number %q", part)
		}
		to := from
		if isRange {
			to, err = strconv.Atoi(hi)
			if err != nil || to < from {
				return fmt.Errorf("invalid batch range %q", part)
			}
		}
		for n := from; n <= to; n++ {
			*b = append(*b, n)
		}
	}
	return nil
}

// options are the parsed command line flags.
type options struct {
	configPath  string
	batches     batchList
	sequential  bool
	workers     int
	overwrite   bool
	folder      string
	format      string
	batchSize   int
	baseURL     string
	userAgent   string
	rps         float64
	burst       int
	logLevel    string
	pretty      bool
	metricsAddr string
	redisAddr   string
	cacheTTL    time.Duration
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("batchdl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "settings file (default: user config dir)")
	fs.Var(&opts.batches, "batch", "batch numbers to download, e.g. 3,4 or 3-5 (repeatable)")
	fs.BoolVar(&opts.sequential, "sequential", false, "fetch one item at a time")
	fs.IntVar(&opts.workers, "workers", 0, "worker count in parallel mode (overrides settings)")
	fs.BoolVar(&opts.overwrite, "overwrite", false, "replace existing batch files")
	fs.StringVar(&opts.folder, "folder", "", "download folder (overrides settings)")
	fs.StringVar(&opts.format, "format", "", "file name template (overrides settings)")
	fs.IntVar(&opts.batchSize, "batch-size", 0, "IDs per batch (overrides settings)")
	fs.StringVar(&opts.baseURL, "base-url", getEnv("BATCHDL_BASE_URL", ""), "record endpoint; the ID is appended")
	fs.StringVar(&opts.userAgent, "user-agent", getEnv("BATCHDL_USER_AGENT", "batchdl/1.0"), "User-Agent header")
	fs.Float64Var(&opts.rps, "rps", 0, "request rate limit per second (0: unlimited)")
	fs.IntVar(&opts.burst, "burst", 1, "request burst size when -rps is set")
	fs.StringVar(&opts.logLevel, "log-level", getEnv("LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.BoolVar(&opts.pretty, "pretty", false, "human-readable log output")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", getEnv("METRICS_ADDR", ""), "serve Prometheus metrics on this address")
	fs.StringVar(&opts.redisAddr, "redis", getEnv("REDIS_URL", ""), "Redis address for the outcome cache")
	fs.DurationVar(&opts.cacheTTL, "cache-ttl", cache.DefaultTTL, "outcome cache TTL")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if len(opts.batches) == 0 {
		return options{}, errors.New("at least one -batch is required")
	}
	if opts.baseURL == "" {
		return options{}, errors.New("-base-url (or BATCHDL_BASE_URL) is required")
	}
	return opts, nil
}

// loadSettings reads the settings file and applies flag overrides.
func loadSettings(opts options) (config.Settings, error) {
	path := opts.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return config.Settings{}, err
		}
		path = p
	}

	settings, err := config.Load(path)
	if err != nil {
		return config.Settings{}, err
	}
	if opts.folder != "" {
		settings.DownloadFolder = opts.folder
	}
	if opts.format != "" {
		settings.FilenameFormat = opts.format
	}
	if opts.batchSize > 0 {
		settings.BatchSize = opts.batchSize
	}
	if opts.workers > 0 {
		settings.Workers = opts.workers
	}
	return settings, settings.Validate()
}

// buildFetcher stacks the outcome cache over the throttle over the HTTP client.
func buildFetcher(ctx context.Context, opts options, logger zerolog.Logger) (fetch.Fetcher, func(), error) {
	httpClient, err := client.New(client.Config{
		BaseURL:   opts.baseURL,
		UserAgent: opts.userAgent,
		Timeout:   client.DefaultTimeout,
		IDField:   batch.DefaultIDField,
	})
	if err != nil {
		return nil, nil, err
	}

	var f fetch.Fetcher = httpClient
	throttle := ratelimit.Config{RequestsPerSecond: opts.rps, Burst: opts.burst}
	if throttle.Enabled() {
		f = ratelimit.NewFetcher(f, throttle)
		logger.Info().Str("limit", throttle.String()).Msg("Request throttle enabled")
	}

	cleanup := func() {}
	if opts.redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", opts.redisAddr).Msg("Redis unavailable, running without cache")
			redisClient.Close()
		} else {
			f = cache.NewFetcher(f, redisClient, cache.Config{TTL: opts.cacheTTL})
			cleanup = func() { redisClient.Close() }
			logger.Info().Str("addr", opts.redisAddr).Msg("Outcome cache enabled")
		}
	}
	return f, cleanup, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "batchdl:", err)
		}
		return exitUsage
	}

	level, err := logging.ParseLevel(opts.logLevel)
	if err != nil {
		fmt.Fprintln(stderr, "batchdl:", err)
		return exitUsage
	}
	logging.Setup(logging.Config{Level: level, Pretty: opts.pretty, Output: stderr})
	logger := logging.NewLogger("cli")

	settings, err := loadSettings(opts)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid settings")
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, opts.metricsAddr); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	fetcher, cleanup, err := buildFetcher(ctx, opts, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create fetcher")
		return exitUsage
	}
	defer cleanup()

	m, err := manager.New(settings, fetcher, manager.Options{})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create manager")
		return exitUsage
	}

	mode := batch.ModeParallel
	if opts.sequential {
		mode = batch.ModeSequential
	}

	exit := exitOK
	for _, n := range opts.batches {
		if _, err := m.Run(ctx, n, mode); err != nil {
			logger.Error().Err(err).Int("batch", n).Msg("Batch not started")
			exit = exitNotSaved
		}
	}

	go func() {
		<-ctx.Done()
		m.StopAll()
	}()

	if err := m.Wait(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Wait interrupted")
	}

	for _, task := range m.List() {
		if task.State() == batch.Completed && opts.overwrite && errors.Is(task.LastSaveError(), persist.ErrFileExists) {
			if _, err := task.Save(true); err != nil {
				logger.Error().Err(err).Int("batch", task.BatchNumber()).Msg("Overwrite failed")
			}
		}
		report(stdout, task)
		if task.State() != batch.Saved {
			exit = exitNotSaved
		}
	}
	return exit
}

// report prints a one-line summary of task.
func report(w io.Writer, task *batch.Task) {
	c := task.Counts()
	summary := fmt.Sprintf("batch %d: %s (%d/%d fetched, %d found, %d absent, %d failed, %s)",
		task.BatchNumber(), task.State(), c.Fetched, task.BatchSize(),
		c.Successful, c.NotFound, c.Failed, task.Elapsed())

	if file, ok := task.File(); ok {
		summary += fmt.Sprintf(" -> %s %s md5=%s sha1=%s", file.Path, file.HumanSize, file.MD5, file.SHA1)
	} else if err := task.LastSaveError(); err != nil {
		summary += fmt.Sprintf(": %v", err)
	}
	fmt.Fprintln(w, summary)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
