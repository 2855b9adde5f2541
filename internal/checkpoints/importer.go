package checkpoints

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/wolfman30/defense-intake/internal/intake"
	"github.com/wolfman30/defense-intake/pkg/logging"
)

var blankLines = regexp.MustCompile(`\n\s*\n`)

// Report summarizes one import run.
type Report struct {
	Source   string   `json:"source"`
	Parsed   int      `json:"parsed"`
	Skipped  int      `json:"skipped"`
	Geocoded int      `json:"geocoded"`
	Saved    int      `json:"saved"`
	Errors   []string `json:"errors,omitempty"`
}

type ImporterConfig struct {
	Store    Store
	Geocoder Geocoder
	// Region is appended to addresses before geocoding, e.g. "Ohio".
	Region   string
	Location *time.Location
	DryRun   bool
	Logger   *logging.Logger
}

// Importer turns announcement text into stored checkpoints.
type Importer struct {
	cfg ImporterConfig
}

func NewImporter(cfg ImporterConfig) (*Importer, error) {
	if cfg.Store == nil && !cfg.DryRun {
		return nil, errors.New("checkpoints: store required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Importer{cfg: cfg}, nil
}

// SplitAnnouncements separates blank-line delimited announcements.
func SplitAnnouncements(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range blankLines.Split(text, -1) {
		if block = strings.TrimSpace(block); block != "" {
			out = append(out, block)
		}
	}
	return out
}

// Run reads src, parses each announcement for year, geocodes and saves it.
// A bad announcement is recorded in the report and skipped.
func (im *Importer) Run(ctx context.Context, src Source, year int) (*Report, error) {
	raw, err := src.Read(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{Source: src.Name()}
	for i, block := range SplitAnnouncements(string(raw)) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		cp, err := ParseAnnouncement(block, year, im.cfg.Location)
		if err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("announcement %d: %v", i+1, err))
			continue
		}
		report.Parsed++
		cp.Source = src.Name()
		if cp.TimeAssumed {
			im.cfg.Logger.Info("checkpoints: no hours in announcement, using default window", "checkpoint_id", cp.ID)
		}

		if im.cfg.Geocoder != nil {
			lat, lng, err := im.cfg.Geocoder.Geocode(ctx, im.address(cp))
			if err != nil {
				im.cfg.Logger.Warn("checkpoints: geocode failed", "checkpoint_id", cp.ID, "error", err)
				report.Errors = append(report.Errors, fmt.Sprintf("announcement %d: geocode: %v", i+1, err))
			} else {
				cp.Latitude, cp.Longitude = &lat, &lng
				report.Geocoded++
			}
		}

		if im.cfg.DryRun {
			continue
		}
		if err := im.cfg.Store.Upsert(ctx, cp); err != nil {
			return report, fmt.Errorf("checkpoints: save %s: %w", cp.ID, err)
		}
		report.Saved++
	}
	im.cfg.Logger.Info("checkpoints: import finished", "source", report.Source, "parsed", report.Parsed,
		"skipped", report.Skipped, "saved", report.Saved)
	return report, nil
}

func (im *Importer) address(cp *Checkpoint) string {
	parts := []string{cp.Location}
	if cp.County != "" {
		parts = append(parts, intake.Label(intake.CountyOptions(), cp.County)+" County")
	}
	if im.cfg.Region != "" {
		parts = append(parts, im.cfg.Region)
	}
	return strings.Join(parts, ", ")
}
