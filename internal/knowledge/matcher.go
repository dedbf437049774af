// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package knowledge

import "strings"

// MatchIconic finds the best iconic-model entry for a listing's brand and
// model. A candidate matches when its brand word-set intersects the
// listing's and its model string is a substring of (or contains) the
// listing's model. Among matches the longest registry model string wins.
// Returns nil when nothing matches.
func (b *Base) MatchIconic(brand, model string) *IconicModel {
	if len(b.iconic) == 0 {
		return nil
	}

	listingWords := brandWords(brand)
	modelL := strings.ToLower(model)

	var best *IconicModel
	bestLen := 0

	for i := range b.iconic {
		entry := &b.iconic[i]

		if !wordsIntersect(listingWords, brandWords(entry.Brand)) {
			continue
		}

		entryModel := strings.ToLower(entry.Model)
		if !strings.Contains(modelL, entryModel) && !strings.Contains(entryModel, modelL) {
			continue
		}

		if len(entryModel) > bestLen {
			best = entry
			bestLen = len(entryModel)
		}
	}

	return best
}

// IconicScore rates how strongly a brand+model is associated with top-ranked
// guitarists, on a 0-100 scale. Each guitarist with at least one matching
// gear entry contributes (101 - rank)/100; the sum is normalized against the
// largest such sum across every model in the knowledge base.
//
// An empty guitarist knowledge base returns the neutral 50: "no data" must
// not score like "no association".
func (b *Base) IconicScore(brand, model string) float64 {
	if len(b.guitarists) == 0 {
		return 50
	}
	if b.maxAssociation <= 0 {
		return 0
	}

	listingWords := brandWords(brand)
	modelL := strings.ToLower(model)

	var sum float64
	for i := range b.guitarists {
		g := &b.guitarists[i]
		if guitaristMatches(g, listingWords, modelL) {
			sum += g.Weight()
		}
	}

	score := sum / b.maxAssociation * 100
	if score > 100 {
		score = 100
	}
	return score
}

// guitaristMatches reports whether any of the guitarist's gear entries match
// the listing. A guitarist counts once regardless of how many entries match.
func guitaristMatches(g *GuitaristAssociation, listingWords map[string]struct{}, modelL string) bool {
	for i := range g.Gear {
		ref := &g.Gear[i]
		if !wordsIntersect(listingWords, brandWords(ref.Brand)) {
			continue
		}
		refModel := strings.ToLower(ref.Model)
		if strings.Contains(modelL, refModel) || strings.Contains(refModel, modelL) {
			return true
		}
	}
	return false
}

// computeMaxAssociation finds the largest summed association weight over all
// gear models in the base. Each distinct gear (brand, model) pair is scored
// by summing the weights of every guitarist referencing it.
func (b *Base) computeMaxAssociation() float64 {
	sums := make(map[string]float64)
	for i := range b.guitarists {
		g := &b.guitarists[i]
		seen := make(map[string]struct{}, len(g.Gear))
		for j := range g.Gear {
			key := strings.ToLower(g.Gear[j].Brand) + "|" + strings.ToLower(g.Gear[j].Model)
			// A duplicate pair within one guitarist counts once.
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			sums[key] += g.Weight()
		}
	}

	var maxSum float64
	for _, s := range sums {
		if s > maxSum {
			maxSum = s
		}
	}
	return maxSum
}
