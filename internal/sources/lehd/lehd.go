// Package lehd acquires LODES workplace-area employment microdata. This is
// the run's critical source: the download is a single streamed attempt with
// a long timeout and no retry loop, and any failure, transport or parse, is
// returned to the caller to abort the run.
package lehd

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hnabuild/lib/optional"
	"hnabuild/lib/redact"
	"hnabuild/lib/tabular"
	"hnabuild/lib/telemetry"

	"github.com/go-resty/resty/v2"
)

// large compressed payloads need far longer than the default fetch timeout
const DefaultTimeout = time.Second * 120

type Options struct {
	BaseURL string
	// two-letter state code, e.g. "co"
	State   string
	Year    int
	DestDir string
	Timeout time.Duration
}

type Client struct {
	http    *resty.Client
	baseURL string
	state   string
	year    int
	destDir string
}

func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	telemetry.InstrumentResty(client, "hnabuild/lehd")

	return &Client{
		http:    client,
		baseURL: opts.BaseURL,
		state:   strings.ToLower(opts.State),
		year:    opts.Year,
		destDir: opts.DestDir,
	}
}

// Filename is the deterministic archive name encoding state, year and data
// category (workplace area characteristics, all jobs).
func (c *Client) Filename() string {
	return fmt.Sprintf("%s_wac_S000_JT00_%d.csv.gz", c.state, c.year)
}

func (c *Client) url() string {
	return fmt.Sprintf("%s/%s/wac/%s", c.baseURL, c.state, c.Filename())
}

// Download streams the archive to disk and returns the written path.
func (c *Client) Download(ctx context.Context) (string, error) {
	err := os.MkdirAll(c.destDir, 0o755)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(c.destDir, c.Filename())
	url := c.url()
	slog.InfoContext(ctx, "downloading employment microdata", "url", redact.Redact(url))

	res, err := c.http.R().SetContext(ctx).SetOutput(dest).Get(url)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", redact.Redact(url), err)
	}
	if res.IsError() {
		// the error body was streamed to dest; don't leave it behind
		os.Remove(dest)
		return "", fmt.Errorf("download %s: unexpected status %s", redact.Redact(url), res.Status())
	}

	slog.InfoContext(ctx, "employment microdata saved", "dest", dest)
	return dest, nil
}

// ReadTable decompresses and parses a downloaded archive.
func ReadTable(path string) (*tabular.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &tabular.ParseError{Path: path, Err: err}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, &tabular.ParseError{Path: path, Err: err}
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, &tabular.ParseError{Path: path, Err: err}
	}
	return tabular.Parse(string(data))
}

// FilterCounty narrows the table to rows whose "cty" geocode column starts
// with the state-qualified county code. Absent input stays absent.
func FilterCounty(table optional.Option[*tabular.Table], geocode string) optional.Option[*tabular.Table] {
	t, ok := table.Get()
	if !ok {
		return optional.None[*tabular.Table]()
	}

	out := &tabular.Table{Columns: t.Columns, Rows: []tabular.Row{}}
	for _, row := range t.Rows {
		if strings.HasPrefix(row["cty"], geocode) {
			out.Rows = append(out.Rows, row)
		}
	}
	return optional.Some(out)
}
