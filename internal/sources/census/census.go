// Package census acquires ACS survey tables through the Census API.
//
// Every query belongs to a fallback chain: an ordered list of dataset/year
// variants tried until one returns data. Chain exhaustion is an expected
// outcome, expressed as an absent value rather than an error; the winning
// payload of each chain is cached so a later run surviving on stale data is
// possible.
package census

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"hnabuild/lib/fetch"
	"hnabuild/lib/optional"
	"hnabuild/lib/redact"
	"hnabuild/lib/tabular"

	"github.com/natefinch/atomic"
)

type Options struct {
	BaseURL string
	// optional API key appended to every query
	Key      string
	CacheDir string
	Fetch    *fetch.Client
}

type Client struct {
	baseURL  string
	key      string
	cacheDir string
	fetch    *fetch.Client
}

func NewClient(opts Options) *Client {
	return &Client{
		baseURL:  opts.BaseURL,
		key:      opts.Key,
		cacheDir: opts.CacheDir,
		fetch:    opts.Fetch,
	}
}

// one entry of a fallback chain
type variant struct {
	Dataset string
	Year    int
}

func (c *Client) queryURL(v variant, variables, geography string) string {
	params := fmt.Sprintf("get=%s&for=%s", variables, geography)
	if c.key != "" {
		params += fmt.Sprintf("&key=%s", c.key)
	}
	return fmt.Sprintf("%s/%d/%s?%s", c.baseURL, v.Year, v.Dataset, params)
}

// get performs one chain-entry query, returning the raw header+rows records
// or None. Census responses are a JSON list of lists with a header row.
func (c *Client) get(ctx context.Context, v variant, variables, geography string) optional.Option[[][]string] {
	url := c.queryURL(v, variables, geography)
	slog.InfoContext(ctx, "census request", "url", redact.Redact(url))

	value, ok := c.fetch.JSON(ctx, url).Get()
	if !ok {
		return optional.None[[][]string]()
	}
	records, err := normalize(value)
	if err != nil {
		slog.WarnContext(
			ctx, "census payload has unexpected shape",
			"url", redact.Redact(url),
			"err", err.Error(),
		)
		return optional.None[[][]string]()
	}
	return optional.Some(records)
}

func normalize(value any) ([][]string, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON array, got %T", value)
	}

	records := make([][]string, 0, len(list))
	for _, rowValue := range list {
		cells, ok := rowValue.([]any)
		if !ok {
			return nil, fmt.Errorf("expected a JSON array row, got %T", rowValue)
		}
		record := make([]string, len(cells))
		for i, cell := range cells {
			switch v := cell.(type) {
			case nil:
				record[i] = ""
			case string:
				record[i] = v
			default:
				record[i] = fmt.Sprintf("%v", v)
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func (c *Client) fetchChain(ctx context.Context, name, variables, geography string, chain []variant) optional.Option[*tabular.Table] {
	for _, v := range chain {
		records, ok := c.get(ctx, v, variables, geography).Get()
		if !ok {
			slog.WarnContext(
				ctx, "census fallback returned no data, trying next",
				"source", name,
				"dataset", v.Dataset,
				"year", v.Year,
			)
			continue
		}

		table, err := tabular.FromRecords(records)
		if err != nil {
			slog.WarnContext(
				ctx, "census payload not tabular, trying next",
				"source", name,
				"dataset", v.Dataset,
				"err", err.Error(),
			)
			continue
		}

		slog.InfoContext(
			ctx, "census fallback succeeded",
			"source", name,
			"dataset", v.Dataset,
			"year", v.Year,
		)
		c.writeCache(ctx, name, records)
		return optional.Some(table)
	}

	slog.ErrorContext(
		ctx, "census fallbacks exhausted",
		"source", name,
		"geography", geography,
	)
	return c.loadCache(ctx, name)
}

// FetchProfile retrieves ACS profile variables, trying
// acs1/profile → acs1/subject → acs5/profile → acs5/subject.
func (c *Client) FetchProfile(ctx context.Context, geography, variables string, year int) optional.Option[*tabular.Table] {
	chain := []variant{
		{"acs/acs1/profile", year},
		{"acs/acs1/subject", year},
		{"acs/acs5/profile", year},
		{"acs/acs5/subject", year},
	}
	return c.fetchChain(ctx, "acs_profile", variables, geography, chain)
}

// FetchCommuting retrieves the S0801 commuting table, trying
// acs1/subject → acs5/subject.
func (c *Client) FetchCommuting(ctx context.Context, geography, variables string, year int) optional.Option[*tabular.Table] {
	chain := []variant{
		{"acs/acs1/subject", year},
		{"acs/acs5/subject", year},
	}
	return c.fetchChain(ctx, "acs_s0801", variables, geography, chain)
}

func (c *Client) cachePath(name string) string {
	return filepath.Join(c.cacheDir, fmt.Sprintf("census_%s.json", name))
}

func (c *Client) writeCache(ctx context.Context, name string, records [][]string) {
	if c.cacheDir == "" {
		return
	}
	data, err := json.Marshal(records)
	if err != nil {
		slog.WarnContext(ctx, "failed to encode census cache", "source", name, "err", err.Error())
		return
	}
	err = os.MkdirAll(c.cacheDir, 0o755)
	if err == nil {
		err = atomic.WriteFile(c.cachePath(name), bytes.NewReader(data))
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to write census cache", "source", name, "err", err.Error())
	}
}

func (c *Client) loadCache(ctx context.Context, name string) optional.Option[*tabular.Table] {
	if c.cacheDir == "" {
		return optional.None[*tabular.Table]()
	}
	data, err := os.ReadFile(c.cachePath(name))
	if err != nil {
		return optional.None[*tabular.Table]()
	}

	var records [][]string
	err = json.Unmarshal(data, &records)
	if err != nil {
		slog.WarnContext(ctx, "census cache unreadable", "source", name, "err", err.Error())
		return optional.None[*tabular.Table]()
	}
	table, err := tabular.FromRecords(records)
	if err != nil {
		slog.WarnContext(ctx, "census cache not tabular", "source", name, "err", err.Error())
		return optional.None[*tabular.Table]()
	}

	// staleness is accepted silently beyond this warning
	slog.WarnContext(ctx, "using cached census payload, not fresh", "source", name, "cache", c.cachePath(name))
	return optional.Some(table)
}

// FilterCounty narrows the table to rows whose "county" column equals the
// geography code. Absent input stays absent.
func FilterCounty(table optional.Option[*tabular.Table], county string) optional.Option[*tabular.Table] {
	t, ok := table.Get()
	if !ok {
		return optional.None[*tabular.Table]()
	}

	out := &tabular.Table{Columns: t.Columns, Rows: []tabular.Row{}}
	for _, row := range t.Rows {
		if row["county"] == county {
			out.Rows = append(out.Rows, row)
		}
	}
	return optional.Some(out)
}
