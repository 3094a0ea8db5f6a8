package build

// Config is the explicit run configuration handed to NewRunner. There is no
// package-level mutable state; everything an adapter needs arrives through
// here.
type Config struct {
	OutputDir string `json:"output_dir" env:"HNA_OUTPUT_DIR"`
	CacheDir  string `json:"cache_dir" env:"HNA_CACHE_DIR"`

	// state scoping for every source
	StateAbbr string `json:"state_abbr"`
	StateFIPS string `json:"state_fips"`
	Year      int    `json:"year"`

	// recorded in the run-metadata artifact
	Version string `json:"version"`

	StateEstimatesURL string `json:"state_estimates_url"`
	CensusBaseURL     string `json:"census_base_url"`
	CensusKey         string `json:"census_key" env:"CENSUS_API_KEY"`
	LehdBaseURL       string `json:"lehd_base_url"`

	ProfileVariables   string `json:"profile_variables"`
	CommutingVariables string `json:"commuting_variables"`

	TimeoutSeconds     int     `json:"timeout_seconds"`
	LehdTimeoutSeconds int     `json:"lehd_timeout_seconds"`
	Retries            int     `json:"retries"`
	Backoff            float64 `json:"backoff"`
}

func DefaultConfig() Config {
	return Config{
		OutputDir:          "data/hna/output",
		CacheDir:           "data/hna/source",
		StateAbbr:          "co",
		StateFIPS:          "08",
		Year:               2022,
		Version:            "1.0",
		StateEstimatesURL:  "https://demography.dola.colorado.gov/assets/downloads/county_sya_estimates.csv",
		CensusBaseURL:      "https://api.census.gov/data",
		LehdBaseURL:        "https://lehd.ces.census.gov/data/lodes/LODES8",
		ProfileVariables:   "NAME,DP02_0001E,DP03_0062E,DP04_0001E",
		CommutingVariables: "NAME,S0801_C01_001E,S0801_C01_046E",
		TimeoutSeconds:     30,
		LehdTimeoutSeconds: 120,
		Retries:            3,
		Backoff:            1.7,
	}
}
