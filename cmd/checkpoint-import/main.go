package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/wolfman30/defense-intake/cmd/mainconfig"
	"github.com/wolfman30/defense-intake/internal/checkpoints"
	appconfig "github.com/wolfman30/defense-intake/internal/config"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

type options struct {
	source string
	year   int
	region string
	dryRun bool
}

func parseFlags(args []string, cfg *appconfig.Config) (options, error) {
	fs := flag.NewFlagSet("checkpoint-import", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.source, "source", "", "announcement file path or s3://bucket/key")
	fs.IntVar(&opts.year, "year", time.Now().Year(), "year for announcements that omit it")
	fs.StringVar(&opts.region, "region", "Ohio", "state appended to geocoding addresses")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "parse and geocode without saving")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.source == "" && cfg.CheckpointBucket != "" {
		opts.source = "s3://" + cfg.CheckpointBucket + "/announcements.txt"
	}
	if opts.source == "" {
		return options{}, fmt.Errorf("-source is required")
	}
	if opts.year < 2000 || opts.year > 2100 {
		return options{}, fmt.Errorf("-year %d out of range", opts.year)
	}
	return opts, nil
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("checkpoint import failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appconfig.Config, opts options, logger *logging.Logger) error {
	var s3Client checkpoints.S3API
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	s3Client = s3.NewFromConfig(awsCfg, mainconfig.S3Options(cfg))

	src, err := checkpoints.ParseSource(opts.source, s3Client)
	if err != nil {
		return err
	}

	importerCfg := checkpoints.ImporterConfig{
		Region: opts.region,
		DryRun: opts.dryRun,
		Logger: logger,
	}
	if loc, err := time.LoadLocation("America/New_York"); err == nil {
		importerCfg.Location = loc
	}
	if g := checkpoints.NewHTTPGeocoder(cfg.GeocoderAPIKey, cfg.GeocoderURL, nil); g != nil {
		importerCfg.Geocoder = g
	} else {
		logger.Warn("GEOCODER_API_KEY not set; checkpoints are saved without coordinates")
	}
	if !opts.dryRun {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required unless -dry-run is set")
		}
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer func() { _ = db.Close() }()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping db: %w", err)
		}
		importerCfg.Store = checkpoints.NewSQLStore(db)
	}

	importer, err := checkpoints.NewImporter(importerCfg)
	if err != nil {
		return err
	}
	report, err := importer.Run(ctx, src, opts.year)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	return err
}
