// Copyright 2025 James Ross
package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

var (
	specialCharsRe = regexp.MustCompile(`[^A-Za-z0-9 ]`)
	htmlPolicy     = bluemonday.StrictPolicy()
)

// dateLayouts are tried in order; the first that parses wins. No
// date-parsing library appears anywhere in the retrieved corpus for
// this job, so this fixed fallback chain is the grounded choice (see
// DESIGN.md).
var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
}

func isNullish(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && s == "" {
		return true
	}
	return false
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

func extractDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func toUpper(v any) (any, error) {
	if isNullish(v) {
		return nil, nil
	}
	return strings.ToUpper(asString(v)), nil
}

func toLower(v any) (any, error) {
	if isNullish(v) {
		return nil, nil
	}
	return strings.ToLower(asString(v)), nil
}

func toStringFn(v any) (any, error) {
	if isNullish(v) {
		return nil, nil
	}
	return asString(v), nil
}

func toIntFn(v any) (any, error) {
	if isNullish(v) {
		return nil, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	default:
		n, err := strconv.Atoi(strings.TrimSpace(asString(v)))
		if err != nil {
			return nil, fmt.Errorf("to_int: %w", err)
		}
		return n, nil
	}
}

func toFloatFn(v any) (any, error) {
	if isNullish(v) {
		return nil, nil
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	default:
		f, err := strconv.ParseFloat(strings.TrimSpace(asString(v)), 64)
		if err != nil {
			return nil, fmt.Errorf("to_float: %w", err)
		}
		return f, nil
	}
}

func toBoolFn(v any) (any, error) {
	if isNullish(v) {
		return nil, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	default:
		b, err := strconv.ParseBool(strings.TrimSpace(asString(v)))
		if err != nil {
			return nil, fmt.Errorf("to_bool: %w", err)
		}
		return b, nil
	}
}

func formatPhone(v any) (any, error) {
	if isNullish(v) {
		return nil, nil
	}
	s := asString(v)
	digits := extractDigits(s)
	switch {
	case len(digits) == 10:
		return "+1" + digits, nil
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits, nil
	default:
		return s, nil
	}
}

func formatEmail(v any) (any, error) {
	if isNullish(v) {
		return nil, nil
	}
	s := strings.ToLower(strings.TrimSpace(asString(v)))
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return nil, nil
	}
	domain := s[at+1:]
	if !strings.Contains(domain, ".") {
		return nil, nil
	}
	return s, nil
}

func formatDate(v any) (any, error) {
	if isNullish(v) {
		return nil, nil
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339), nil
	}
	s := asString(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339), nil
		}
	}
	return s, nil
}

func cleanHTML(v any) (any, error) {
	if isNullish(v) {
		return nil, nil
	}
	return strings.TrimSpace(htmlPolicy.Sanitize(asString(v))), nil
}

func truncate255(v any) (any, error) {
	if isNullish(v) {
		return nil, nil
	}
	r := []rune(asString(v))
	if len(r) > 255 {
		r = r[:255]
	}
	return string(r), nil
}

func removeSpecialChars(v any) (any, error) {
	if isNullish(v) {
		return nil, nil
	}
	return strings.TrimSpace(specialCharsRe.ReplaceAllString(asString(v), "")), nil
}

func registerBuiltins(r *Registry) {
	r.fns["to_upper"] = toUpper
	r.fns["to_lower"] = toLower
	r.fns["to_string"] = toStringFn
	r.fns["to_int"] = toIntFn
	r.fns["to_float"] = toFloatFn
	r.fns["to_bool"] = toBoolFn
	r.fns["format_phone"] = formatPhone
	r.fns["format_email"] = formatEmail
	r.fns["format_date"] = formatDate
	r.fns["clean_html"] = cleanHTML
	r.fns["truncate_255"] = truncate255
	r.fns["remove_special_chars"] = removeSpecialChars
}
