// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package market

import "strings"

// conditionLevel pairs a canonical condition string with its 0-100 score.
// The scale is ordered best-first so fuzzy matching prefers the more
// specific grade ("very good+" before "good").
type conditionLevel struct {
	name  string
	score float64
}

// conditionScale is the 13-level ordinal condition scale.
var conditionScale = []conditionLevel{
	{"mint", 100},
	{"near mint", 95},
	{"excellent+", 90},
	{"excellent", 85},
	{"excellent-", 80},
	{"very good+", 70},
	{"very good", 60},
	{"very good-", 50},
	{"good+", 40},
	{"good", 30},
	{"good-", 20},
	{"fair", 10},
	{"poor", 0},
}

// NeutralScore is the documented default for any sub-score whose inputs are
// missing or unparsable.
const NeutralScore = 50.0

// ConditionScore maps a free-text condition string to 0-100. Exact matches
// against the 13-level scale win; otherwise a fuzzy substring match is
// attempted ("Excellent Plus" matches "excellent+"). Unknown conditions get
// the neutral 50.
func ConditionScore(condition string) float64 {
	normalized := strings.ToLower(strings.TrimSpace(condition))
	if normalized == "" {
		return NeutralScore
	}

	for _, level := range conditionScale {
		if normalized == level.name || normalized == spellOut(level.name) {
			return level.score
		}
	}

	for _, level := range conditionScale {
		if strings.Contains(normalized, spellOut(level.name)) {
			return level.score
		}
		if strings.Contains(normalized, level.name) || strings.Contains(level.name, normalized) {
			return level.score
		}
	}

	return NeutralScore
}

// spellOut expands grade suffixes so "Excellent Plus" matches "excellent+".
func spellOut(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, "+", " plus"), "-", " minus")
}
