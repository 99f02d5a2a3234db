package ingest

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/offercdp/offercdp/internal/customer"
	"github.com/offercdp/offercdp/internal/offer"
	"github.com/offercdp/offercdp/internal/shared"
)

// batchConcurrency bounds how many batch records process at once. Records for
// the same customer still serialize on the customer row lock.
const batchConcurrency = 8

// Result is the outcome of ingesting one record.
type Result struct {
	CustomerID      uuid.UUID     `json:"customer_id"`
	CustomerCreated bool          `json:"customer_created"`
	Outcome         offer.Outcome `json:"outcome"`
}

// RecordResult pairs a batch record index with its result or failure. Batch
// processing isolates failures per record; one bad record never aborts the
// feed.
type RecordResult struct {
	Index  int     `json:"index"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// BatchResult aggregates a batch run.
type BatchResult struct {
	Processed int            `json:"processed"`
	Failed    int            `json:"failed"`
	Records   []RecordResult `json:"records"`
}

// Service is the ingestion entry point: resolve identity, upsert the
// customer, then hand the offer to the precedence engine.
type Service struct {
	customers *customer.Service
	engine    *offer.Engine
	validate  *validator.Validate
}

// NewService builds a Service instance.
func NewService(customers *customer.Service, engine *offer.Engine) *Service {
	return &Service{
		customers: customers,
		engine:    engine,
		validate:  validator.New(),
	}
}

// Process ingests one record.
func (s *Service) Process(ctx context.Context, rec Record) (*Result, error) {
	if err := s.validate.Struct(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	incoming := rec.incomingOffer()
	if err := incoming.Validate(); err != nil {
		return nil, err
	}

	cust, created, err := s.customers.Upsert(ctx, rec.identifiers(), rec.Attributes)
	if err != nil {
		return nil, fmt.Errorf("ingest: upsert customer: %w", err)
	}

	outcome, err := s.engine.Process(ctx, cust.ID, incoming)
	if err != nil {
		return nil, fmt.Errorf("ingest: process offer: %w", err)
	}

	return &Result{CustomerID: cust.ID, CustomerCreated: created, Outcome: outcome}, nil
}

// ProcessBatch ingests a batch feed with bounded concurrency. Every record
// gets an individual outcome; errors are captured per record and reported
// upward for the error-report collaborator.
func (s *Service) ProcessBatch(ctx context.Context, records []Record) BatchResult {
	results := make([]RecordResult, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			res, err := s.Process(ctx, rec)
			if err != nil {
				results[i] = RecordResult{Index: i, Error: err.Error()}
				return nil
			}
			results[i] = RecordResult{Index: i, Result: res}
			return nil
		})
	}
	// Workers never return errors; per-record failures live in results.
	_ = g.Wait()

	batch := BatchResult{Records: results}
	for _, r := range results {
		if r.Error != "" {
			batch.Failed++
			continue
		}
		batch.Processed++
	}
	return batch
}
