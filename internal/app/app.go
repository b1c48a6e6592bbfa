package app

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

	"github.com/charmbracelet/log"
	"github.com/cheggaaa/pb/v3"
	"github.com/joho/godotenv"

	"edgescan/internal/app/version"
	"edgescan/internal/config"
	"edgescan/internal/database"
	"edgescan/internal/geolite"
	"edgescan/internal/jobs/checker"
	"edgescan/internal/jobs/queue/candidates"
	"edgescan/internal/jobs/scanner"
	"edgescan/internal/sink"
	"edgescan/internal/source"
	"edgescan/internal/support"
)

const threadsEnv = "SCAN_THREADS"

type options struct {
	configPath  string
	initConfig  bool
	threads     int
	threadsSet  bool
	debug       bool
	noProgress  bool
	showVersion bool
}

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found. Falling back to system environment variables.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, os.Args[1:], os.Stdout)
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	log.SetLevel(parseLogLevel(os.Getenv("LOG_LEVEL"), opts.debug))

	if opts.showVersion {
		if stdout != nil {
			fmt.Fprintln(stdout, version.GetInfo())
		}
		return nil
	}

	if opts.initConfig {
		if err := config.WriteDefaultSettings(opts.configPath); err != nil {
			return err
		}
		log.Info("Default settings written", "path", opts.configPath)
		return nil
	}

	cfg, err := config.ReadSettings(opts.configPath)
	if err != nil {
		return err
	}

	threads := resolveThreads(opts, threadsEnv, cfg.Scanner.Threads)
	if threads < 1 {
		return &config.ConfigurationError{Field: "threads", Reason: fmt.Sprintf("must be at least 1, got %d", threads)}
	}
	cfg.Scanner.Threads = threads
	config.SetConfig(cfg)

	if limit := support.FileDescriptorLimit(); support.WorkersExceedDescriptorLimit(threads, limit) {
		log.Warn("Worker count is close to the open file limit", "workers", threads, "limit", limit)
	}

	classifier, err := checker.NewClassifier(checker.Options{
		Token:        cfg.Scanner.Token,
		Timeout:      cfg.ProbeTimeout(),
		Port:         cfg.Scanner.ProbePort,
		UserAgent:    cfg.Scanner.UserAgent,
		MaxBodyBytes: cfg.Scanner.MaxBodyBytes,
		SocksProxy:   cfg.Scanner.ProbeProxy,
	})
	if err != nil {
		return fmt.Errorf("create classifier: %w", err)
	}

	s := &scan{
		cfg:        cfg,
		classifier: classifier,
		stdout:     stdout,
		progress:   !opts.noProgress,
	}
	defer func() {
		if err := support.CloseRedisClient(); err != nil {
			log.Warn("error closing redis client", "error", err)
		}
	}()

	return s.execute(ctx)
}

func parseFlags(args []string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("edgescan", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", config.DefaultSettingsPath, "Path to the settings file")
	fs.BoolVar(&opts.initConfig, "init-config", false, "Write the default settings file and exit")
	fs.IntVar(&opts.threads, "threads", 0, "Number of concurrent workers (overrides "+threadsEnv+" and the settings file)")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")
	fs.BoolVar(&opts.showVersion, "version", false, "Print the version and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "threads" {
			opts.threadsSet = true
		}
	})

	return opts, nil
}

func parseLogLevel(raw string, debug bool) log.Level {
	if debug {
		return log.DebugLevel
	}
	if raw == "" {
		return log.InfoLevel
	}
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		log.Warn("invalid log level", "env", "LOG_LEVEL", "value", raw)
		return log.InfoLevel
	}
	return level
}

// resolveThreads applies the -threads flag first, then the environment
// override, then the configured value.
func resolveThreads(opts options, envKey string, configured int) int {
	if opts.threadsSet {
		return opts.threads
	}
	if threads := readThreads(envKey); threads != 0 {
		return threads
	}
	return configured
}

func readThreads(envKey string) int {
	raw := strings.TrimSpace(os.Getenv(envKey))
	if raw == "" {
		return 0
	}
	threads, err := strconv.Atoi(raw)
	if err != nil || threads < 1 {
		log.Warn("invalid thread override", "env", envKey, "value", raw)
		return 0
	}
	return threads
}

// scan is one complete run: fetch, probe, enrich, save and print.
type scan struct {
	cfg        config.Config
	classifier scanner.Classifier
	stdout     io.Writer
	progress   bool
}

func (s *scan) execute(ctx context.Context) error {
	cfg := s.cfg
	scanID := support.NewScanID()
	started := time.Now().UTC()

	fetcher := source.NewFetcher(cfg.Source.URL, cfg.FetchTimeout(), source.WithParseOptions(source.ParseOptions{
		IncludeIPv6:      cfg.Source.IncludeIPv6,
		ExpandCIDR:       cfg.Source.ExpandCIDR,
		MaxHostsPerRange: cfg.Source.MaxHostsPerRange,
	}))

	items, err := fetcher.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch address ranges: %w", err)
	}
	log.Info("Address ranges fetched", "url", fetcher.URL(), "candidates", len(items))

	coordinatorOpts := []scanner.Option{
		scanner.WithPacing(cfg.PacingDelay()),
		scanner.WithRateLimit(cfg.Scanner.RateLimit, rateBurst(cfg.Scanner.RateLimit)),
	}

	if cfg.Queue.Backend == config.QueueBackendRedis {
		client, err := support.GetRedisClient(cfg.Queue.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to get redis client: %w", err)
		}
		queue := candidates.NewRedisQueue(client, scanID, 0)
		defer func() {
			if err := queue.Close(); err != nil {
				log.Warn("error closing candidate queue", "error", err)
			}
		}()
		coordinatorOpts = append(coordinatorOpts, scanner.WithQueue(queue))
	}

	if s.progress && len(items) > 0 {
		bar := pb.New(len(items))
		bar.SetWriter(os.Stderr)
		bar.Set("prefix", "Scanning ")
		bar.Start()
		defer bar.Finish()
		coordinatorOpts = append(coordinatorOpts, scanner.WithProgress(func(scanner.Progress) {
			bar.Increment()
		}))
	}

	results, runErr := scanner.NewCoordinator(s.classifier, coordinatorOpts...).
		Run(ctx, items, cfg.Scanner.Threads)

	partial := false
	if runErr != nil {
		if ctx.Err() == nil || !errors.Is(runErr, ctx.Err()) {
			return fmt.Errorf("scan: %w", runErr)
		}
		partial = true
		log.Warn("Scan interrupted, keeping partial results", "found", len(results))
	}

	lookup, err := geolite.Open(cfg.GeoLite.CountryDB, cfg.GeoLite.ASNDB)
	if err != nil {
		log.Warn("GeoLite databases unavailable, skipping enrichment", "error", err)
		lookup = nil
	}
	defer lookup.Close()

	report := sink.Report{
		ID:         scanID,
		Token:      cfg.Scanner.Token,
		SourceURL:  cfg.Source.URL,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Candidates: len(items),
		Workers:    cfg.Scanner.Threads,
		Partial:    partial,
		Detections: sink.BuildDetections(results, lookup),
	}

	sinks, cleanup, setupErr := s.buildSinks()
	defer cleanup()

	// Results found before an interrupt are still written out.
	saveErr := errors.Join(setupErr, sinks.Save(context.WithoutCancel(ctx), report))

	printReport(s.stdout, report)

	if saveErr != nil {
		return fmt.Errorf("save results: %w", saveErr)
	}
	return nil
}

// buildSinks always includes the JSON file. A backend that cannot be set up
// is left out and its error is returned alongside the usable sinks.
func (s *scan) buildSinks() (sink.Multi, func(), error) {
	cfg := s.cfg
	sinks := sink.Multi{sink.NewJSONFile(cfg.Output.File)}
	var (
		closers []func()
		errs    []error
	)

	if cfg.Output.Redis.Enabled {
		client, err := support.GetRedisClient(cfg.Output.Redis.URL)
		if err != nil {
			log.Error("Redis sink disabled", "error", err)
			errs = append(errs, fmt.Errorf("redis sink: %w", err))
		} else {
			sinks = append(sinks, sink.NewRedis(client, cfg.ResultRetention()))
		}
	}

	if cfg.Output.Database.Enabled {
		db, err := database.SetupDB()
		if err != nil {
			log.Error("Database sink disabled", "error", err)
			errs = append(errs, fmt.Errorf("database sink: %w", err))
		} else {
			closers = append(closers, func() {
				if err := database.Close(db); err != nil {
					log.Warn("error closing database", "error", err)
				}
			})
			sinks = append(sinks, sink.NewDatabase(db))
		}
	}

	cleanup := func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}

	return sinks, cleanup, errors.Join(errs...)
}

func rateBurst(perSecond float64) int {
	if perSecond < 1 {
		return 1
	}
	return int(perSecond)
}

func printReport(w io.Writer, report sink.Report) {
	if w == nil {
		return
	}

	if len(report.Detections) == 0 {
		fmt.Fprintf(w, "No addresses fronted by %s found among %d candidates.\n", report.Token, report.Candidates)
		return
	}

	fmt.Fprintf(w, "Found %d addresses fronted by %s:\n", len(report.Detections), report.Token)
	for _, detection := range report.Detections {
		line := detection.Address
		var extra []string
		if detection.Country != "" {
			extra = append(extra, detection.Country)
		}
		if detection.ASN != 0 {
			extra = append(extra, fmt.Sprintf("AS%d %s", detection.ASN, detection.Organization))
		}
		if len(extra) > 0 {
			line += "  (" + strings.Join(extra, ", ") + ")"
		}
		fmt.Fprintln(w, line)
	}
}
