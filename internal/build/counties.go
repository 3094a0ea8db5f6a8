package build

import "fmt"

// Counties returns the geography codes processed by a run: the odd
// three-digit county FIPS codes 001 through 123, 62 in total. Generated
// fresh per run and read-only afterwards.
func Counties() []string {
	var codes []string
	for fips := 1; fips <= 123; fips += 2 {
		codes = append(codes, fmt.Sprintf("%03d", fips))
	}
	return codes
}
