// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package ml

import (
	"context"
	"fmt"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/fretsonar/fretsonar/internal/logging"
	"github.com/fretsonar/fretsonar/internal/market"
	"github.com/fretsonar/fretsonar/internal/scoring"
)

func setupDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func fptr(v float64) *float64 { return &v }

// syntheticData builds a corpus large enough to train all four models.
func syntheticData() TrainingData {
	brands := []string{"Gibson", "Fender", "Martin", "Guild", "Supro", "Harmony"}
	models := []string{"Les Paul", "Stratocaster", "D-28", "Starfire", "Dual Tone", "Sovereign"}
	conditions := []string{"Mint", "Excellent", "Very Good", "Good", "Fair"}

	var sold []market.SoldTransaction
	for i := 0; i < 60; i++ {
		listed := 2000 + float64(i)*150
		ratio := 0.78 + float64(i%5)*0.06 // 0.78 .. 1.02
		sold = append(sold, market.SoldTransaction{
			ID:          fmt.Sprintf("sold-%d", i),
			Source:      "reverb",
			Brand:       brands[i%len(brands)],
			Model:       models[i%len(models)],
			Year:        fmt.Sprintf("%d", 1950+i),
			Type:        market.TypeElectric,
			Condition:   conditions[i%len(conditions)],
			ListedPrice: fptr(listed),
			SoldPrice:   fptr(listed * ratio),
			MarketLow:   fptr(listed * 0.9),
			MarketHigh:  fptr(listed * 1.3),
		})
	}

	rates := make(map[string]float64, 25)
	for i := 0; i < 25; i++ {
		key := fmt.Sprintf("%s|%s %d", brands[i%len(brands)], models[i%len(models)], i)
		rates[key] = 0.01 + float64(i)*0.005
	}

	collection := []market.CollectionEntry{
		{Brand: "Gibson", Model: "ES-335", Type: market.TypeElectric, Year: "1964"},
		{Brand: "Martin", Model: "000-18", Type: market.TypeAcoustic, Year: "1952"},
	}

	var decisions []market.Decision
	for i := 0; i < 10; i++ {
		action := market.DecisionSkip
		if i%2 == 0 {
			action = market.DecisionBuy
		}
		decisions = append(decisions, market.Decision{
			Listing: market.Listing{
				Brand: brands[i%len(brands)],
				Model: models[i%len(models)],
				Year:  "1960",
				Type:  market.TypeElectric,
				Price: fptr(3000 + float64(i)*100),
			},
			Action: action,
		})
	}

	return TrainingData{
		Sold:         sold,
		Decisions:    decisions,
		Collection:   collection,
		LearnedRates: rates,
	}
}

func TestTrainAll(t *testing.T) {
	store := NewModelStore(setupDB(t))
	trainer := NewTrainer(DefaultTrainerConfig(), store, nil, logging.NewTestLogger())

	report, err := trainer.TrainAll(context.Background(), syntheticData())
	if err != nil {
		t.Fatalf("TrainAll() error = %v", err)
	}

	for _, name := range ModelNames {
		r, ok := report[name]
		if !ok {
			t.Fatalf("report missing model %s", name)
		}
		if !r.Trained {
			t.Errorf("%s not trained: %s", name, r.SkipReason)
		}
	}

	meta, err := store.LoadMeta(ModelWeightOptimizer)
	if err != nil {
		t.Fatalf("LoadMeta() error = %v", err)
	}
	if meta == nil {
		t.Fatal("weight optimizer meta missing after training")
	}
	var sum float64
	for _, name := range scoring.DimensionOrder {
		w, ok := meta.LearnedWeights[name]
		if !ok {
			t.Errorf("learned weights missing dimension %s", name)
		}
		if w < 0 {
			t.Errorf("learned weight %s = %v, want >= 0", name, w)
		}
		sum += w
	}
	if sum < 0.99 || sum > 1.01 {
		t.Errorf("learned weights sum = %v, want ~1", sum)
	}
	if meta.FeatureVersion != FeatureVersion {
		t.Errorf("FeatureVersion = %d, want %d", meta.FeatureVersion, FeatureVersion)
	}
}

func TestTrainAllSkipsBelowMinimums(t *testing.T) {
	store := NewModelStore(setupDB(t))
	trainer := NewTrainer(DefaultTrainerConfig(), store, nil, logging.NewTestLogger())

	data := syntheticData()
	data.Sold = data.Sold[:5]
	data.LearnedRates = map[string]float64{"gibson|les paul": 0.08}
	data.Decisions = nil

	report, err := trainer.TrainAll(context.Background(), data)
	if err != nil {
		t.Fatalf("TrainAll() error = %v", err)
	}
	if n := report.TrainedCount(); n != 0 {
		t.Errorf("TrainedCount() = %d, want 0", n)
	}
	for name, r := range report {
		if r.SkipReason == "" {
			t.Errorf("%s skipped without a reason", name)
		}
	}
}

func TestPredictorEndToEnd(t *testing.T) {
	db := setupDB(t)
	store := NewModelStore(db)
	trainer := NewTrainer(DefaultTrainerConfig(), store, nil, logging.NewTestLogger())

	data := syntheticData()
	if _, err := trainer.TrainAll(context.Background(), data); err != nil {
		t.Fatalf("TrainAll() error = %v", err)
	}

	pred := NewPredictor(store, logging.NewTestLogger())
	if !pred.Available() {
		t.Fatal("Available() = false after full training")
	}

	listing := &market.Listing{
		Brand:      "Gibson",
		Model:      "Les Paul",
		Year:       "1959",
		Type:       market.TypeElectric,
		Price:      fptr(9000),
		MarketLow:  fptr(8500),
		MarketHigh: fptr(14000),
		Condition:  "Excellent",
	}

	weights := map[string]float64{
		scoring.DimValue: 0.25, scoring.DimAppreciate: 0.20, scoring.DimFit: 0.20,
		scoring.DimCondition: 0.20, scoring.DimIconic: 0.15,
	}
	scorer, err := scoring.NewScorer(weights, nil, nil, data.Collection)
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}
	breakdown := scorer.Score(listing)

	ex := NewExtractor(nil, data.Collection)
	p := pred.Predict(ex, listing, &breakdown)

	for _, name := range ModelNames {
		if p.Outcomes[name] != OutcomeSuccess {
			t.Errorf("outcome[%s] = %s, want success", name, p.Outcomes[name])
		}
	}
	if p.MLTotal == nil {
		t.Fatal("MLTotal = nil, want value")
	}
	if p.PredictedPrice == nil || *p.PredictedPrice < 0 {
		t.Errorf("PredictedPrice = %v, want non-negative value", p.PredictedPrice)
	}
	if p.BuyProbability == nil || *p.BuyProbability < 0 || *p.BuyProbability > 100 {
		t.Errorf("BuyProbability = %v, want within [0,100]", p.BuyProbability)
	}

	status := pred.Status()
	for _, name := range ModelNames {
		if !status[name].Available {
			t.Errorf("status[%s].Available = false", name)
		}
	}
}

func TestPredictorColdStart(t *testing.T) {
	store := NewModelStore(setupDB(t))
	pred := NewPredictor(store, logging.NewTestLogger())

	if pred.Available() {
		t.Fatal("Available() = true on an empty store")
	}

	listing := &market.Listing{Brand: "Gibson", Model: "SG"}
	scorer, err := scoring.NewScorer(map[string]float64{scoring.DimValue: 1}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}
	breakdown := scorer.Score(listing)

	p := pred.Predict(NewExtractor(nil, nil), listing, &breakdown)
	for _, name := range ModelNames {
		if p.Outcomes[name] != OutcomeAbsent {
			t.Errorf("outcome[%s] = %s, want absent", name, p.Outcomes[name])
		}
	}
	if p.MLTotal != nil || p.PredictedPrice != nil || p.BuyProbability != nil {
		t.Error("cold-start prediction carries model values")
	}
}

func TestPredictorRejectsFeatureVersionMismatch(t *testing.T) {
	store := NewModelStore(setupDB(t))

	model := &BoostedRegressor{Base: 100, LearningRate: 0.1}
	meta := Meta{Samples: 60, FeatureVersion: FeatureVersion + 1}
	if err := store.Save(ModelPricePredictor, model, meta); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	pred := NewPredictor(store, logging.NewTestLogger())
	if pred.Available() {
		t.Error("Available() = true for a mismatched feature version")
	}

	listing := &market.Listing{Brand: "Gibson", Model: "SG"}
	scorer, _ := scoring.NewScorer(map[string]float64{scoring.DimValue: 1}, nil, nil, nil)
	breakdown := scorer.Score(listing)
	p := pred.Predict(NewExtractor(nil, nil), listing, &breakdown)
	if p.Outcomes[ModelPricePredictor] != OutcomeFailed {
		t.Errorf("outcome = %s, want failed", p.Outcomes[ModelPricePredictor])
	}
}

func TestBlend(t *testing.T) {
	ml := 80.0

	tests := []struct {
		name    string
		rule    float64
		mlTotal *float64
		factor  float64
		want    float64
	}{
		{"nil ml passes rule through", 60, nil, 0.5, 60},
		{"zero factor keeps rule", 60, &ml, 0, 60},
		{"full factor takes ml", 60, &ml, 1, 80},
		{"half and half", 60, &ml, 0.5, 70},
		{"factor clamped above one", 60, &ml, 3, 80},
		{"factor clamped below zero", 60, &ml, -2, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Blend(tt.rule, tt.mlTotal, tt.factor); got != tt.want {
				t.Errorf("Blend() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector(setupDB(t), logging.NewTestLogger())

	txns := []market.SoldTransaction{
		{ID: "a1", Source: "reverb", Brand: "Gibson", Model: "SG",
			ListedPrice: fptr(3000), SoldPrice: fptr(2800)},
		{ID: "a2", Source: "reverb", Brand: "Fender", Model: "Jaguar",
			ListedPrice: fptr(2500), SoldPrice: fptr(2500)},
	}

	n, err := c.AddSold(txns)
	if err != nil {
		t.Fatalf("AddSold() error = %v", err)
	}
	if n != 2 {
		t.Errorf("AddSold() = %d, want 2", n)
	}

	t.Run("dedupes by source and id", func(t *testing.T) {
		n, err := c.AddSold(txns)
		if err != nil {
			t.Fatalf("AddSold() error = %v", err)
		}
		if n != 0 {
			t.Errorf("AddSold() = %d, want 0", n)
		}
		sold, err := c.Sold()
		if err != nil {
			t.Fatalf("Sold() error = %v", err)
		}
		if len(sold) != 2 {
			t.Errorf("len(Sold()) = %d, want 2", len(sold))
		}
	})

	t.Run("records decisions", func(t *testing.T) {
		d := market.Decision{
			Listing: market.Listing{Brand: "Gibson", Model: "SG"},
			Action:  market.DecisionBuy,
		}
		if err := c.RecordDecision(d); err != nil {
			t.Fatalf("RecordDecision() error = %v", err)
		}
		if err := c.RecordDecision(d); err != nil {
			t.Fatalf("RecordDecision() error = %v", err)
		}

		decisions, err := c.Decisions()
		if err != nil {
			t.Fatalf("Decisions() error = %v", err)
		}
		if len(decisions) != 2 {
			t.Errorf("len(Decisions()) = %d, want 2", len(decisions))
		}
		if decisions[0].At.IsZero() {
			t.Error("decision timestamp not stamped")
		}
	})

	t.Run("rejects unknown action", func(t *testing.T) {
		err := c.RecordDecision(market.Decision{Action: "maybe"})
		if err == nil {
			t.Fatal("RecordDecision() error = nil, want error")
		}
	})
}
