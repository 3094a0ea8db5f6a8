// Package fetch is the retrying HTTP transport for upstream data sources.
//
// Two accessors share one retry policy: Text raises after exhausting its
// retries, JSON degrades to an absent value. Callers choose the accessor
// matching the criticality of the data they are fetching.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"hnabuild/lib/optional"
	"hnabuild/lib/redact"
	"hnabuild/lib/telemetry"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultTimeout = time.Second * 30
	DefaultRetries = 3
	DefaultBackoff = 1.7
)

// TransportError is the terminal failure of a GET after all retries.
type TransportError struct {
	URL      string // already redacted
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("GET %s failed after %d attempt(s): %s", e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Options struct {
	// zero values fall back to the package defaults
	Timeout time.Duration
	Retries int
	Backoff float64
	// Sleep replaces time.Sleep between attempts; tests use this to assert
	// the backoff schedule without waiting it out.
	Sleep func(time.Duration)
}

type Client struct {
	http    *resty.Client
	retries int
	backoff float64
	sleep   func(time.Duration)
}

func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries == 0 {
		opts.Retries = DefaultRetries
	}
	if opts.Backoff == 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	telemetry.InstrumentResty(client, "hnabuild/fetch")

	return &Client{
		http:    client,
		retries: opts.Retries,
		backoff: opts.Backoff,
		sleep:   opts.Sleep,
	}
}

func (c *Client) getOnce(ctx context.Context, url string) ([]byte, error) {
	res, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("unexpected status %s", res.Status())
	}
	return res.Body(), nil
}

// withRetries runs attempt up to c.retries times, sleeping backoff^n seconds
// (n zero-indexed) between failures but not after the last one. Each failed
// attempt logs a warning with the redacted URL.
func (c *Client) withRetries(ctx context.Context, url string, attempt func() error) error {
	var last error
	for i := 0; i < c.retries; i++ {
		last = attempt()
		if last == nil {
			return nil
		}
		if i < c.retries-1 {
			wait := time.Duration(math.Pow(c.backoff, float64(i)) * float64(time.Second))
			slog.WarnContext(
				ctx, "GET failed, retrying",
				"attempt", i+1,
				"retries", c.retries,
				"url", redact.Redact(url),
				"err", last.Error(),
				"wait_seconds", wait.Seconds(),
			)
			c.sleep(wait)
		}
	}
	return &TransportError{URL: redact.Redact(url), Attempts: c.retries, Err: last}
}

// Text GETs url and returns the body. After retries are exhausted it returns
// a *TransportError wrapping the last failure.
func (c *Client) Text(ctx context.Context, url string) (string, error) {
	var body []byte
	err := c.withRetries(ctx, url, func() error {
		var err error
		body, err = c.getOnce(ctx, url)
		return err
	})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// JSON GETs url and returns the decoded payload, or None after retries are
// exhausted. A body that fails to decode counts as a failed attempt, the
// same as a transport error.
func (c *Client) JSON(ctx context.Context, url string) optional.Option[any] {
	var value any
	err := c.withRetries(ctx, url, func() error {
		body, err := c.getOnce(ctx, url)
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &value)
	})
	if err != nil {
		slog.ErrorContext(
			ctx, "GET failed on all retries",
			"url", redact.Redact(url),
			"err", err.Error(),
		)
		return optional.None[any]()
	}
	return optional.Some(value)
}
