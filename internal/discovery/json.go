package discovery

import (
	"bytes"
	"encoding/json"

	"github.com/PentesterFlow/spa-crawler/internal/scope"
)

// FromJSON walks a JSON document and treats every string leaf as a candidate.
// Empty or malformed input yields an empty slice.
func FromJSON(data []byte, n scope.CandidateNormalizer) []string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []string{}
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []string{}
	}

	var leaves []string
	collectStrings(doc, &leaves)
	return normalizeAll(n, leaves)
}

func collectStrings(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		*out = append(*out, t)
	case map[string]any:
		for _, child := range t {
			collectStrings(child, out)
		}
	case []any:
		for _, child := range t {
			collectStrings(child, out)
		}
	}
}
