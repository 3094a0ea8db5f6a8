// Package build sequences the data sources for one run: best-effort sources
// first, each isolated so its failure degrades rather than stops the run,
// then the critical employment source whose failure aborts. Artifacts are
// written per source as soon as its table is available, so a later abort
// never discards earlier extracts.
package build

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"hnabuild/internal/sources/census"
	"hnabuild/internal/sources/dola"
	"hnabuild/internal/sources/lehd"
	"hnabuild/lib/fetch"
	"hnabuild/lib/optional"
	"hnabuild/lib/tabular"

	"github.com/natefinch/atomic"
)

type SourceStatus struct {
	Name     string
	Critical bool
	OK       bool
	Detail   string
}

// Outcome accumulates per-source flags and artifact paths for logging and
// exit-code purposes only; nothing here survives the run.
type Outcome struct {
	Sources   []SourceStatus
	Artifacts []string
	Started   time.Time
	Finished  time.Time
}

func (o *Outcome) record(name string, critical, ok bool, detail string) {
	o.Sources = append(o.Sources, SourceStatus{
		Name:     name,
		Critical: critical,
		OK:       ok,
		Detail:   detail,
	})
}

type Runner struct {
	cfg    Config
	dola   *dola.Client
	census *census.Client
	lehd   *lehd.Client
}

func NewRunner(cfg Config) *Runner {
	f := fetch.NewClient(fetch.Options{
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Retries: cfg.Retries,
		Backoff: cfg.Backoff,
	})

	return &Runner{
		cfg: cfg,
		dola: dola.NewClient(dola.Options{
			URL:       cfg.StateEstimatesURL,
			CachePath: filepath.Join(cfg.CacheDir, "dola_sya_county.csv"),
			Fetch:     f,
		}),
		census: census.NewClient(census.Options{
			BaseURL:  cfg.CensusBaseURL,
			Key:      cfg.CensusKey,
			CacheDir: cfg.CacheDir,
			Fetch:    f,
		}),
		lehd: lehd.NewClient(lehd.Options{
			BaseURL: cfg.LehdBaseURL,
			State:   cfg.StateAbbr,
			Year:    cfg.Year,
			DestDir: cfg.OutputDir,
			Timeout: time.Duration(cfg.LehdTimeoutSeconds) * time.Second,
		}),
	}
}

func utcTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Run executes the pipeline. A non-nil error means the run must exit 1:
// either the output directory could not be created or the critical source
// failed. Best-effort source failures never surface here.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	outcome := Outcome{Started: time.Now()}
	defer func() { outcome.Finished = time.Now() }()

	slog.InfoContext(ctx, "build started", "timestamp", utcTimestamp())

	// the one infrastructure precondition that aborts unconditionally,
	// checked before any fetch
	err := os.MkdirAll(r.cfg.OutputDir, 0o755)
	if err != nil {
		return outcome, fmt.Errorf("create output directory %s: %w", r.cfg.OutputDir, err)
	}

	counties := Counties()
	geography := fmt.Sprintf("county:*&in=state:%s", r.cfg.StateFIPS)

	sya := r.dola.Load(ctx)
	outcome.record("state_estimates", false, sya.IsSome(), "")
	r.writeExtracts(ctx, &outcome, "sya", sya, counties, dola.FilterCounty, identity)

	profile := r.census.FetchProfile(ctx, geography, r.cfg.ProfileVariables, r.cfg.Year)
	outcome.record("acs_profile", false, profile.IsSome(), "")
	r.writeExtracts(ctx, &outcome, "acs_profile", profile, counties, census.FilterCounty, identity)

	commuting := r.census.FetchCommuting(ctx, geography, r.cfg.CommutingVariables, r.cfg.Year)
	outcome.record("acs_s0801", false, commuting.IsSome(), "")
	r.writeExtracts(ctx, &outcome, "acs_s0801", commuting, counties, census.FilterCounty, identity)

	r.writeGeoConfig(ctx, &outcome)

	// critical source last: its failure aborts, but every best-effort
	// artifact above has already been written
	archive, err := r.lehd.Download(ctx)
	if err != nil {
		outcome.record("employment_microdata", true, false, err.Error())
		return outcome, fmt.Errorf("employment microdata: %w", err)
	}
	wac, err := lehd.ReadTable(archive)
	if err != nil {
		outcome.record("employment_microdata", true, false, err.Error())
		return outcome, fmt.Errorf("employment microdata: %w", err)
	}
	outcome.record("employment_microdata", true, true, archive)
	outcome.Artifacts = append(outcome.Artifacts, archive)

	r.writeExtracts(ctx, &outcome, "lehd", optional.Some(wac), counties, lehd.FilterCounty, func(county string) string {
		return r.cfg.StateFIPS + county
	})

	slog.InfoContext(ctx, "build finished", "timestamp", utcTimestamp())
	return outcome, nil
}

func identity(county string) string { return county }

type countyFilter func(optional.Option[*tabular.Table], string) optional.Option[*tabular.Table]

// writeExtracts writes one CSV per county from a source's full table. An
// absent source writes nothing: absence propagates, it is not an error. The
// filterKey maps a county code to the convention the source filters by.
func (r *Runner) writeExtracts(
	ctx context.Context,
	outcome *Outcome,
	prefix string,
	table optional.Option[*tabular.Table],
	counties []string,
	filter countyFilter,
	filterKey func(county string) string,
) {
	if !table.IsSome() {
		slog.InfoContext(ctx, "skipping extracts, source absent", "source", prefix)
		return
	}

	written := 0
	for _, county := range counties {
		extract, ok := filter(table, filterKey(county)).Get()
		if !ok {
			continue
		}

		data, err := extract.Encode()
		if err != nil {
			slog.WarnContext(ctx, "failed to encode extract", "source", prefix, "county", county, "err", err.Error())
			continue
		}
		path := filepath.Join(r.cfg.OutputDir, fmt.Sprintf("%s_%s.csv", prefix, county))
		err = atomic.WriteFile(path, bytes.NewReader(data))
		if err != nil {
			slog.WarnContext(ctx, "failed to write extract", "source", prefix, "county", county, "err", err.Error())
			continue
		}

		outcome.Artifacts = append(outcome.Artifacts, path)
		written++
	}
	slog.InfoContext(ctx, "extracts written", "source", prefix, "counties", written)
}

// writeGeoConfig writes the run-metadata artifact. Best-effort: a failure
// here degrades the run, it does not abort it.
func (r *Runner) writeGeoConfig(ctx context.Context, outcome *Outcome) {
	metadata := struct {
		Generated string `json:"generated"`
		Version   string `json:"version"`
	}{
		Generated: utcTimestamp(),
		Version:   r.cfg.Version,
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		slog.WarnContext(ctx, "failed to encode geo config", "err", err.Error())
		return
	}

	path := filepath.Join(r.cfg.OutputDir, "geo_config.json")
	err = atomic.WriteFile(path, bytes.NewReader(data))
	if err != nil {
		slog.WarnContext(ctx, "failed to write geo config", "err", err.Error())
		return
	}

	outcome.Artifacts = append(outcome.Artifacts, path)
	slog.InfoContext(ctx, "geo config written", "path", path)
}
