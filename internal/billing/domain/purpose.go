package billing

import (
	"fmt"
	"sort"
	"strings"
)

// Purpose is a flight purpose code from the flight log.
type Purpose string

var allowedPurposes = map[Purpose]struct{}{
	"GEO": {}, "HAR": {}, "HIN": {}, "KOE": {}, "KOU": {}, "LAN": {}, "LAS": {}, "LVL": {},
	"MAT": {}, "PALO": {}, "RAH": {}, "SAI": {}, "SAR": {}, "SII": {}, "TAI": {}, "TAR": {},
	"TIL": {}, "VLL": {}, "VOI": {}, "YLE": {}, "MUU": {}, "KIL": {}, "TYY": {},
}

// ParsePurpose upper-cases value and validates it against the allowed purpose codes.
func ParsePurpose(value string) (Purpose, error) {
	p := Purpose(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := allowedPurposes[p]; !ok {
		return "", fmt.Errorf("%w: %q, allowed values are: %s", ErrInvalidPurpose, value, strings.Join(AllowedPurposes(), " "))
	}
	return p, nil
}

// AllowedPurposes lists the purpose codes in sorted order.
func AllowedPurposes() []string {
	out := make([]string, 0, len(allowedPurposes))
	for p := range allowedPurposes {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}
