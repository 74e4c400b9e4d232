package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Coercion helpers for values decoded from generator JSON payloads.
// encoding/json hands back interface{} values (string, float64, bool,
// []interface{}), and the generator is free to get types wrong: numbers as
// strings, single strings where arrays belong, and so on. These helpers
// absorb that instead of letting type assertions panic mid-parse.

// AsString extracts a string from a decoded JSON value.
func AsString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// AsStringSlice extracts a list of strings. A bare string is treated as a
// comma-separated list, matching how the generator often flattens arrays.
func AsStringSlice(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := AsString(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return []string{}
		}
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case nil:
		return []string{}
	default:
		return []string{}
	}
}

// AsFloat extracts a numeric value. Returns (0, false) when the value is
// neither a number nor a numeric string.
func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// CoerceLevel normalizes a rating into the closed Low/Medium/High set.
// Unknown or missing values default to Medium.
func CoerceLevel(v any) Level {
	switch strings.ToLower(AsString(v)) {
	case "low":
		return LevelLow
	case "medium", "med":
		return LevelMedium
	case "high":
		return LevelHigh
	default:
		return LevelMedium
	}
}

// SnapPoints maps an arbitrary effort value onto the nearest value of
// EffortScale. Ties resolve to the lower value, so 4 snaps to 3.
// Non-numeric input snaps to the scale minimum.
func SnapPoints(v any) int {
	f, ok := AsFloat(v)
	if !ok {
		return EffortScale[0]
	}
	best := EffortScale[0]
	bestDist := abs(f - float64(best))
	for _, p := range EffortScale[1:] {
		d := abs(f - float64(p))
		if d < bestDist {
			best = p
			bestDist = d
		}
	}
	return best
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
