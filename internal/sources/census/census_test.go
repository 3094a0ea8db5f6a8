package census

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hnabuild/lib/fetch"
	"hnabuild/lib/optional"
	"hnabuild/lib/tabular"

	"github.com/stretchr/testify/require"
)

const profilePayload = `[["NAME","DP04_0001E","state","county"],
["Adams County, Colorado","185000","08","001"],
["Boulder County, Colorado","135000","08","013"]]`

func fastFetch() *fetch.Client {
	return fetch.NewClient(fetch.Options{
		Retries: 1,
		Sleep:   func(d time.Duration) {},
	})
}

// census API stub serving only the listed dataset paths
func censusServer(t *testing.T, served map[string]string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for path, payload := range served {
			if strings.Contains(r.URL.Path, path) {
				w.Write([]byte(payload))
				return
			}
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestQueryURL(t *testing.T) {
	client := NewClient(Options{BaseURL: "https://api.census.gov/data", Key: "SECRET123"})

	url := client.queryURL(variant{"acs/acs1/profile", 2022}, "NAME,DP04_0001E", "county:*&in=state:08")
	require.Equal(
		t,
		"https://api.census.gov/data/2022/acs/acs1/profile?get=NAME,DP04_0001E&for=county:*&in=state:08&key=SECRET123",
		url,
	)
}

func TestQueryURLWithoutKey(t *testing.T) {
	client := NewClient(Options{BaseURL: "https://api.census.gov/data"})

	url := client.queryURL(variant{"acs/acs5/subject", 2022}, "NAME", "county:*")
	require.NotContains(t, url, "key=")
}

func TestFetchProfileFirstEntrySucceeds(t *testing.T) {
	server := censusServer(t, map[string]string{"acs/acs1/profile": profilePayload})
	client := NewClient(Options{BaseURL: server.URL, Fetch: fastFetch()})

	result := client.FetchProfile(context.Background(), "county:*&in=state:08", "NAME,DP04_0001E", 2022)
	table, ok := result.Get()
	require.True(t, ok)
	require.Equal(t, 2, table.Len())
	require.Equal(t, "001", table.Rows[0]["county"])
}

func TestFetchProfileFallsThroughChain(t *testing.T) {
	// only the last chain entry has data
	server := censusServer(t, map[string]string{"acs/acs5/subject": profilePayload})
	client := NewClient(Options{BaseURL: server.URL, Fetch: fastFetch()})

	result := client.FetchProfile(context.Background(), "county:*&in=state:08", "NAME,DP04_0001E", 2022)
	table, ok := result.Get()
	require.True(t, ok)
	require.Equal(t, 2, table.Len())
}

func TestFetchProfileExhausted(t *testing.T) {
	server := censusServer(t, map[string]string{})
	client := NewClient(Options{BaseURL: server.URL, Fetch: fastFetch()})

	result := client.FetchProfile(context.Background(), "county:*&in=state:08", "NAME", 2022)
	require.False(t, result.IsSome())
}

func TestFetchProfileExhaustedUsesCache(t *testing.T) {
	server := censusServer(t, map[string]string{})
	cacheDir := t.TempDir()

	records := [][]string{{"NAME", "county"}, {"Adams County", "001"}}
	data, err := json.Marshal(records)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "census_acs_profile.json"), data, 0o644))

	client := NewClient(Options{BaseURL: server.URL, CacheDir: cacheDir, Fetch: fastFetch()})

	result := client.FetchProfile(context.Background(), "county:*&in=state:08", "NAME", 2022)
	table, ok := result.Get()
	require.True(t, ok)
	require.Equal(t, 1, table.Len())
}

func TestFetchProfileWritesCache(t *testing.T) {
	server := censusServer(t, map[string]string{"acs/acs1/profile": profilePayload})
	cacheDir := t.TempDir()
	client := NewClient(Options{BaseURL: server.URL, CacheDir: cacheDir, Fetch: fastFetch()})

	result := client.FetchProfile(context.Background(), "county:*&in=state:08", "NAME,DP04_0001E", 2022)
	require.True(t, result.IsSome())

	cached, err := os.ReadFile(filepath.Join(cacheDir, "census_acs_profile.json"))
	require.NoError(t, err)
	var records [][]string
	require.NoError(t, json.Unmarshal(cached, &records))
	require.Len(t, records, 3)
}

func TestFetchCommutingChain(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, Fetch: fastFetch()})
	result := client.FetchCommuting(context.Background(), "county:*&in=state:08", "NAME,S0801_C01_001E", 2022)
	require.False(t, result.IsSome())

	// exactly the two subject variants, in order
	require.Equal(t, []string{
		"/2022/acs/acs1/subject",
		"/2022/acs/acs5/subject",
	}, paths)
}

func TestNormalize(t *testing.T) {
	var value any
	err := json.Unmarshal([]byte(`[["NAME","pop"],["Adams",null],["Boulder",42]]`), &value)
	require.NoError(t, err)

	records, err := normalize(value)
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"NAME", "pop"},
		{"Adams", ""},
		{"Boulder", "42"},
	}, records)
}

func TestNormalizeRejectsNonList(t *testing.T) {
	_, err := normalize(map[string]any{"error": "bad request"})
	require.Error(t, err)
}

func TestFilterCounty(t *testing.T) {
	table := optional.Some(&tabular.Table{
		Columns: []string{"NAME", "county"},
		Rows: []tabular.Row{
			{"NAME": "Adams County", "county": "001"},
			{"NAME": "Boulder County", "county": "013"},
		},
	})

	for _, code := range []string{"001", "013", "999"} {
		filtered, ok := FilterCounty(table, code).Get()
		require.True(t, ok, fmt.Sprintf("county %s must yield a present table", code))
		if code == "999" {
			require.Equal(t, 0, filtered.Len())
		} else {
			require.Equal(t, 1, filtered.Len())
		}
	}
}

func TestFilterCountyAbsentInput(t *testing.T) {
	require.False(t, FilterCounty(optional.None[*tabular.Table](), "001").IsSome())
}
