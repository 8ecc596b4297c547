// Package utils provides utility functions for the covenantwatch service.
// This file contains request parameter conversion helpers.
package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/covenantwatch/pkg/errors"
)

// ================================================================================
// Horizon Parsing
// ================================================================================

// ParseHorizons parses a comma-separated list of positive day counts such as
// "30,60,90". An empty string yields nil so callers can apply defaults.
// Duplicates collapse to their first occurrence.
func ParseHorizons(raw string, maxDays int) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		h, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || h <= 0 || (maxDays > 0 && h > maxDays) {
			return nil, errors.ErrInvalidHorizon(raw)
		}
		out = append(out, h)
	}
	return DedupeInts(out), nil
}

// ParseHorizon parses a single positive day count, falling back to def when raw is empty.
func ParseHorizon(raw string, def, maxDays int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	h, err := strconv.Atoi(raw)
	if err != nil || h <= 0 || (maxDays > 0 && h > maxDays) {
		return 0, errors.ErrInvalidHorizon(raw)
	}
	return h, nil
}

// StringToInt converts a string to an integer with default value on error
func StringToInt(s string, defaultValue int) int {
	if val, err := strconv.Atoi(s); err == nil {
		return val
	}
	return defaultValue
}

// ================================================================================
// Time Parsing
// ================================================================================

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseISOTime parses an ISO 8601 date or date-time. Values without a zone
// are taken as UTC; a bare date means midnight. An empty string yields nil.
func ParseISOTime(name, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.ErrInvalidRequest("invalid "+name+" format, use ISO 8601").WithMetadata(name, raw)
}

// ================================================================================
// Slice Utilities
// ================================================================================

// DedupeInts removes duplicates, keeping the first occurrence of each value.
func DedupeInts(values []int) []int {
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// JoinInts renders values as "a,b,c".
func JoinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// ================================================================================
// Pointer Utilities
// ================================================================================

// Float64Ptr returns a pointer to f
func Float64Ptr(f float64) *float64 {
	return &f
}
