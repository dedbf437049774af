// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

// Package knowledge holds the curated reference data consumed by the scorer:
// brand tier classification, the iconic-model registry with golden eras, and
// the ranked top-guitarist associations.
//
// The knowledge base is read-only after Load and safe for concurrent use.
// Absent files are not an error; the engine degrades to neutral defaults.
package knowledge

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Tier classifies a brand's standing in the vintage market.
type Tier string

// Brand tiers. Every brand not explicitly listed is minor.
const (
	TierPremium Tier = "premium"
	TierMajor   Tier = "major"
	TierMinor   Tier = "minor"
)

// Ordinal returns the numeric encoding used by the feature extractor:
// premium=2, major=1, minor=0.
func (t Tier) Ordinal() float64 {
	switch t {
	case TierPremium:
		return 2
	case TierMajor:
		return 1
	default:
		return 0
	}
}

// IconicModel is a curated registry entry for a historically significant
// model.
type IconicModel struct {
	Brand string `json:"brand"`
	Model string `json:"model"`

	// GoldenEra is the inclusive [start, end] year range of peak
	// desirability.
	GoldenEra [2]int `json:"golden_era"`

	// Boost is the popularity boost in points (0-20) applied to the fit
	// score.
	Boost float64 `json:"boost"`

	// Artists lists associated players, most significant first.
	Artists []string `json:"artists,omitempty"`
}

// InGoldenEra reports whether year falls inside the golden era.
func (m *IconicModel) InGoldenEra(year int) bool {
	return year >= m.GoldenEra[0] && year <= m.GoldenEra[1]
}

// GearRef is one (brand, model) pair a guitarist is publicly associated
// with.
type GearRef struct {
	Brand string `json:"brand"`
	Model string `json:"model"`
}

// GuitaristAssociation ranks a guitarist (1-100, unique) together with the
// instruments they are known for.
type GuitaristAssociation struct {
	Rank int      `json:"rank"`
	Name string   `json:"name"`
	Gear []GearRef `json:"gear"`
}

// Weight is the association weight contributed by this guitarist:
// (101 - rank) / 100, so rank 1 contributes 1.0 and rank 100 contributes
// 0.01.
func (g *GuitaristAssociation) Weight() float64 {
	return float64(101-g.Rank) / 100
}

// Base is the loaded knowledge base. Construct with Load or NewBase.
type Base struct {
	premium map[string]struct{}
	major   map[string]struct{}

	iconic     []IconicModel
	guitarists []GuitaristAssociation

	// maxAssociation is the largest summed association weight across all
	// gear models; the iconic-score normalization denominator. Note the
	// global coupling: adding a highly ranked guitarist for one model
	// lowers every other model's reported score.
	maxAssociation float64
}

// defaultPremiumBrands and defaultMajorBrands seed the tier table when no
// brand_tiers.json is present. Matching is per lowercase brand word.
var (
	defaultPremiumBrands = []string{
		"gibson", "fender", "martin", "angelico", "gretsch", "rickenbacker",
	}
	defaultMajorBrands = []string{
		"taylor", "guild", "epiphone", "maccaferri", "mosrite", "national",
		"hofner", "danelectro", "supro", "silvertone",
	}
)

// knowledge base file names under the knowledge directory.
const (
	brandTiersFile    = "brand_tiers.json"
	iconicModelsFile  = "iconic_models.json"
	topGuitaristsFile = "top_guitarists.json"
)

type brandTiersDoc struct {
	Premium []string `json:"premium"`
	Major   []string `json:"major"`
}

type iconicModelsDoc struct {
	Models []IconicModel `json:"models"`
}

type guitaristsDoc struct {
	Guitarists []GuitaristAssociation `json:"guitarists"`
}

// NewBase builds a knowledge base from in-memory data. Nil slices are
// allowed; empty tier lists fall back to the built-in defaults.
func NewBase(premium, major []string, iconic []IconicModel, guitarists []GuitaristAssociation) *Base {
	if len(premium) == 0 && len(major) == 0 {
		premium = defaultPremiumBrands
		major = defaultMajorBrands
	}

	b := &Base{
		premium:    wordSetFromList(premium),
		major:      wordSetFromList(major),
		iconic:     iconic,
		guitarists: guitarists,
	}
	b.maxAssociation = b.computeMaxAssociation()
	return b
}

// Load reads the knowledge base from dir. Absent files yield an empty (or
// default) section; unreadable or malformed files are logged and treated as
// absent. Load never fails: curated inputs degrade, they do not stop the
// engine.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func Load(dir string, logger zerolog.Logger) *Base {
	logger = logger.With().Str("component", "knowledge").Logger()

	var tiers brandTiersDoc
	loadSection(filepath.Join(dir, brandTiersFile), &tiers, logger)

	var iconic iconicModelsDoc
	loadSection(filepath.Join(dir, iconicModelsFile), &iconic, logger)

	var guitarists guitaristsDoc
	loadSection(filepath.Join(dir, topGuitaristsFile), &guitarists, logger)

	b := NewBase(tiers.Premium, tiers.Major, iconic.Models, guitarists.Guitarists)

	logger.Info().
		Int("iconic_models", len(b.iconic)).
		Int("guitarists", len(b.guitarists)).
		Msg("knowledge base loaded")

	return b
}

// loadSection unmarshals one knowledge file into dst, leaving dst untouched
// when the file is absent or malformed.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func loadSection(path string, dst any, logger zerolog.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn().Str("path", path).Err(err).Msg("knowledge file unreadable")
		}
		return
	}
	if err := json.Unmarshal(data, dst); err != nil {
		logger.Warn().Str("path", path).Err(err).Msg("knowledge file malformed, ignoring")
	}
}

// BrandTier classifies a brand by word match against the tier tables.
// Unlisted brands are minor.
func (b *Base) BrandTier(brand string) Tier {
	words := brandWords(brand)
	for w := range words {
		if _, ok := b.premium[w]; ok {
			return TierPremium
		}
	}
	for w := range words {
		if _, ok := b.major[w]; ok {
			return TierMajor
		}
	}
	return TierMinor
}

// IconicModels returns the registry entries. The slice must not be mutated.
func (b *Base) IconicModels() []IconicModel {
	return b.iconic
}

// GuitaristCount returns the number of loaded guitarist associations.
func (b *Base) GuitaristCount() int {
	return len(b.guitarists)
}

var nonLetterRe = regexp.MustCompile(`[^a-z]+`)

// brandWords tokenizes a brand name into a lowercase word set.
// "C. F. Martin" -> {c, f, martin}.
func brandWords(brand string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range nonLetterRe.Split(strings.ToLower(brand), -1) {
		if w != "" {
			words[w] = struct{}{}
		}
	}
	return words
}

// wordSetFromList builds a word set from a list of brand names, splitting
// multi-word brands into their component words.
func wordSetFromList(brands []string) map[string]struct{} {
	set := make(map[string]struct{}, len(brands))
	for _, b := range brands {
		for w := range brandWords(b) {
			set[w] = struct{}{}
		}
	}
	return set
}

// wordsIntersect reports whether two word sets share at least one word.
func wordsIntersect(a, b map[string]struct{}) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for w := range a {
		if _, ok := b[w]; ok {
			return true
		}
	}
	return false
}
