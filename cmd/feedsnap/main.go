package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/feedsnap/pkg/config"
	"github.com/umputun/feedsnap/pkg/feed"
	"github.com/umputun/feedsnap/pkg/job"
	"github.com/umputun/feedsnap/pkg/snapshot"
)

// Opts with all CLI options, set values override the config file
type Opts struct {
	Config      string        `short:"c" long:"config" env:"CONFIG" description:"yaml config file, optional"`
	Catalog     string        `long:"catalog" env:"CATALOG" description:"OPML catalog of feeds"`
	Output      string        `short:"o" long:"output" env:"OUTPUT" description:"snapshot destination"`
	Window      time.Duration `short:"w" long:"window" env:"WINDOW" description:"recency window, e.g. 24h"`
	Timeout     time.Duration `long:"timeout" env:"TIMEOUT" description:"per-feed fetch timeout"`
	Concurrency int           `short:"j" long:"concurrency" env:"CONCURRENCY" description:"max simultaneous fetches"`
	Locale      string        `long:"locale" env:"LOCALE" description:"locale for ordering and labels"`
	Dedupe      bool          `long:"dedupe" env:"DEDUPE" description:"keep the newest item per link in a category"`

	// common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	setupLog(opts.Debug, opts.NoColor)
	lgr.Printf("[INFO] starting feedsnap version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		lgr.Print("[INFO] termination signal received")
		cancel()
	}()

	err := run(ctx, opts)
	cancel()
	if err != nil {
		lgr.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

// run performs a single aggregation pass, errors returned here are fatal for the process
func run(ctx context.Context, opts Opts) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fetcher := feed.NewHTTPFetcher(feed.Params{
		Timeout:   cfg.Timeout(),
		UserAgent: cfg.Fetch.UserAgent,
		Locale:    cfg.Locale,
	})

	j := job.New(job.Params{
		Catalog:     cfg.Catalog,
		Fetcher:     fetcher,
		Writer:      snapshot.NewWriter(cfg.Output),
		Concurrency: cfg.Fetch.Concurrency,
		Window:      cfg.Window(),
		Locale:      cfg.Locale,
		Dedupe:      cfg.Digest.Dedupe,
	})

	summary, err := j.Run(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	lgr.Printf("[INFO] snapshot %s updated, %d articles", cfg.Output, summary.Snapshot.TotalArticles)
	return nil
}

// loadConfig reads the optional config file and applies command line overrides
func loadConfig(opts Opts) (*config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return nil, err
		}
	}

	if opts.Catalog != "" {
		cfg.Catalog = opts.Catalog
	}
	if opts.Output != "" {
		cfg.Output = opts.Output
	}
	if opts.Locale != "" {
		cfg.Locale = opts.Locale
	}
	if opts.Window != 0 {
		cfg.Digest.WindowHours = int(opts.Window.Round(time.Hour) / time.Hour)
	}
	if opts.Timeout != 0 {
		cfg.Fetch.TimeoutMs = int(opts.Timeout / time.Millisecond)
	}
	if opts.Concurrency != 0 {
		cfg.Fetch.Concurrency = opts.Concurrency
	}
	if opts.Dedupe {
		cfg.Digest.Dedupe = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate options: %w", err)
	}
	lgr.Printf("[DEBUG] config: %+v", *cfg)
	return cfg, nil
}

func setupLog(dbg, noColor bool) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	if !noColor {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
