package automation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Variables fill {{key}} placeholders in step fields.
type Variables map[string]any

// Apply replaces every {{key}} whose key is present. Unknown keys are left
// untouched and substituted values are never expanded again.
func (v Variables) Apply(s string) string {
	if len(v) == 0 || !strings.Contains(s, "{{") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	rest := s
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			break
		}
		end := strings.Index(rest[open+2:], "}}")
		if end < 0 {
			break
		}
		key := rest[open+2 : open+2+end]
		val, ok := v[key]
		if !ok {
			// Keep the opening braces and continue after them so "{{{{a}}" still finds {{a}}.
			b.WriteString(rest[:open+2])
			rest = rest[open+2:]
			continue
		}
		b.WriteString(rest[:open])
		b.WriteString(stringify(val))
		rest = rest[open+2+end+2:]
	}
	b.WriteString(rest)
	return b.String()
}

func (v Variables) ApplyAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = v.Apply(s)
	}
	return out
}

// ParseVariable splits a k=v pair. The value is kept as a string.
func ParseVariable(pair string) (string, string, error) {
	key, value, ok := strings.Cut(pair, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return "", "", fmt.Errorf("invalid variable %q, expected key=value", pair)
	}
	return strings.TrimSpace(key), value, nil
}

func stringify(val any) string {
	switch x := val.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(raw)
	}
}
