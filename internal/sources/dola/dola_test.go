package dola

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hnabuild/lib/fetch"
	"hnabuild/lib/optional"
	"hnabuild/lib/tabular"

	"github.com/stretchr/testify/require"
)

const estimatesCSV = "Vintage 2023 county estimates\ncounty,age,population\n001,0,1234\n003,0,88\n"

func fastFetch() *fetch.Client {
	return fetch.NewClient(fetch.Options{
		Retries: 1,
		Sleep:   func(d time.Duration) {},
	})
}

func TestLoadFresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(estimatesCSV))
	}))
	defer server.Close()

	cache := filepath.Join(t.TempDir(), "source", "dola_sya_county.csv")
	client := NewClient(Options{URL: server.URL, CachePath: cache, Fetch: fastFetch()})

	result := client.Load(context.Background())
	table, ok := result.Get()
	require.True(t, ok)
	require.Equal(t, 2, table.Len())

	// the fresh payload must have been cached verbatim
	cached, err := os.ReadFile(cache)
	require.NoError(t, err)
	require.Equal(t, estimatesCSV, string(cached))
}

func TestLoadFallsBackToCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cache := filepath.Join(t.TempDir(), "dola_sya_county.csv")
	require.NoError(t, os.WriteFile(cache, []byte(estimatesCSV), 0o644))

	client := NewClient(Options{URL: server.URL, CachePath: cache, Fetch: fastFetch()})

	result := client.Load(context.Background())
	table, ok := result.Get()
	require.True(t, ok)
	require.Equal(t, 2, table.Len())
}

func TestLoadAbsentWithoutCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cache := filepath.Join(t.TempDir(), "dola_sya_county.csv")
	client := NewClient(Options{URL: server.URL, CachePath: cache, Fetch: fastFetch()})

	result := client.Load(context.Background())
	require.False(t, result.IsSome())
}

func TestLoadUnparseableCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"unterminated quote`))
	}))
	defer server.Close()

	cache := filepath.Join(t.TempDir(), "dola_sya_county.csv")
	client := NewClient(Options{URL: server.URL, CachePath: cache, Fetch: fastFetch()})

	result := client.Load(context.Background())
	require.False(t, result.IsSome())
}

func TestFilterCounty(t *testing.T) {
	table := optional.Some(&tabular.Table{
		Columns: []string{"county", "age"},
		Rows: []tabular.Row{
			{"county": "Adams", "age": "0"},
			{"county": "ADAMS", "age": "1"},
			{"county": "Boulder", "age": "0"},
		},
	})

	filtered, ok := FilterCounty(table, "adams").Get()
	require.True(t, ok)
	require.Equal(t, 2, filtered.Len())
}

func TestFilterCountyNoMatchIsEmptyNotAbsent(t *testing.T) {
	table := optional.Some(&tabular.Table{
		Columns: []string{"county", "age"},
		Rows:    []tabular.Row{{"county": "Adams", "age": "0"}},
	})

	result := FilterCounty(table, "999")
	filtered, ok := result.Get()
	require.True(t, ok)
	require.Equal(t, 0, filtered.Len())
}

func TestFilterCountyAbsentInput(t *testing.T) {
	result := FilterCounty(optional.None[*tabular.Table](), "001")
	require.False(t, result.IsSome())
}
