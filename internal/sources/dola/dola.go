// Package dola acquires the state demographer's single-year-of-age county
// population estimates. Best-effort source: a fresh download is attempted
// first and atomically replaces the local cache; when the download fails the
// previous cache copy is used, stale or not; when neither is available the
// source is absent and the run continues without it.
package dola

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"hnabuild/lib/fetch"
	"hnabuild/lib/optional"
	"hnabuild/lib/tabular"

	"github.com/natefinch/atomic"
)

type Options struct {
	URL       string
	CachePath string
	Fetch     *fetch.Client
}

type Client struct {
	url       string
	cachePath string
	fetch     *fetch.Client
}

func NewClient(opts Options) *Client {
	return &Client{
		url:       opts.URL,
		cachePath: opts.CachePath,
		fetch:     opts.Fetch,
	}
}

func (c *Client) download(ctx context.Context) error {
	text, err := c.fetch.Text(ctx, c.url)
	if err != nil {
		return err
	}
	err = os.MkdirAll(filepath.Dir(c.cachePath), 0o755)
	if err != nil {
		return err
	}
	// atomic replace: a torn write must never clobber the fallback copy
	return atomic.WriteFile(c.cachePath, strings.NewReader(text))
}

// Load returns the estimates table, preferring a fresh download and falling
// back to the cached copy. None when neither is obtainable.
func (c *Client) Load(ctx context.Context) optional.Option[*tabular.Table] {
	err := c.download(ctx)
	if err != nil {
		_, statErr := os.Stat(c.cachePath)
		if statErr != nil {
			slog.WarnContext(
				ctx, "state estimates unavailable and no cache found, skipping source",
				"err", err.Error(),
			)
			return optional.None[*tabular.Table]()
		}
		slog.WarnContext(
			ctx, "state estimates download failed, using cached file",
			"cache", c.cachePath,
			"err", err.Error(),
		)
	} else {
		slog.InfoContext(ctx, "state estimates saved", "cache", c.cachePath)
	}

	table, err := tabular.ReadCSV(c.cachePath)
	if err != nil {
		slog.WarnContext(
			ctx, "failed to parse state estimates, skipping source",
			"cache", c.cachePath,
			"err", err.Error(),
		)
		return optional.None[*tabular.Table]()
	}
	return optional.Some(table)
}

// FilterCounty narrows the table to rows whose "county" column equals the
// geography code, case-insensitively. An absent input stays absent; a
// present input always yields a present (possibly empty) table.
func FilterCounty(table optional.Option[*tabular.Table], county string) optional.Option[*tabular.Table] {
	t, ok := table.Get()
	if !ok {
		return optional.None[*tabular.Table]()
	}

	out := &tabular.Table{Columns: t.Columns, Rows: []tabular.Row{}}
	for _, row := range t.Rows {
		if strings.EqualFold(row["county"], county) {
			out.Rows = append(out.Rows, row)
		}
	}
	return optional.Some(out)
}
