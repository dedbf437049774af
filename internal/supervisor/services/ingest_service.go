// Fretsonar - Vintage Instrument Market Valuation and Recommendation Engine
// Copyright 2026 The Fretsonar Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fretsonar/fretsonar

package services

import (
	"context"

	"github.com/fretsonar/fretsonar/internal/ingest"
)

// IngestService runs the snapshot router under supervision. Handlers
// must be registered on the router before the tree starts serving.
type IngestService struct {
	router *ingest.Router
	name   string
}

// NewIngestService creates the ingest service.
func NewIngestService(router *ingest.Router) *IngestService {
	return &IngestService{router: router, name: "ingest-router"}
}

// Serve implements suture.Service.
func (s *IngestService) Serve(ctx context.Context) error {
	err := s.router.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// String implements fmt.Stringer for suture logs.
func (s *IngestService) String() string {
	return s.name
}
