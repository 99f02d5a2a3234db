package customer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/offercdp/offercdp/internal/shared"
)

// Service resolves incoming identifiers to at most one existing customer and
// upserts customer records. It never merges two existing customers.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Find resolves identifiers to an existing customer, trying each identifier
// in the fixed priority order and returning the first match. A nil customer
// with nil error means no match; empty identifiers return without querying.
func (s *Service) Find(ctx context.Context, ids Identifiers) (*Customer, error) {
	return find(ctx, s.repo, NormalizeIdentifiers(ids))
}

func find(ctx context.Context, repo Repository, ids Identifiers) (*Customer, error) {
	if ids.Empty() {
		return nil, nil
	}
	for _, field := range matchPriority {
		value := ids.Value(field)
		if value == "" {
			continue
		}
		c, err := repo.GetByIdentifier(ctx, field, value)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("customer: lookup %s: %w", field, err)
		}
		return c, nil
	}
	return nil, nil
}

// Upsert creates a customer for unmatched identifiers or patches the matched
// one. Identifier fields are first-write-wins: a populated value is never
// overwritten, blanks never clobber. Attribute keys are refreshed in place.
// Returns the resulting customer and whether it was created.
func (s *Service) Upsert(ctx context.Context, ids Identifiers, attrs map[string]any) (*Customer, bool, error) {
	ids = NormalizeIdentifiers(ids)
	if ids.Empty() {
		return nil, false, fmt.Errorf("%w: at least one identifier required", shared.ErrInvalidInput)
	}
	attrs = NormalizeAttributes(attrs)

	result, created, err := s.upsertOnce(ctx, ids, attrs)
	if err == nil {
		return result, created, nil
	}
	if !errors.Is(err, shared.ErrDuplicateIdentifier) {
		return nil, false, err
	}
	// A concurrent request created the customer between our match and our
	// insert. Retry the match-then-update path exactly once; a second
	// constraint failure is fatal for this record.
	result, created, err = s.upsertOnce(ctx, ids, attrs)
	if err != nil {
		return nil, false, fmt.Errorf("customer: upsert retry: %w", err)
	}
	return result, created, nil
}

func (s *Service) upsertOnce(ctx context.Context, ids Identifiers, attrs map[string]any) (*Customer, bool, error) {
	var result *Customer
	var created bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		existing, err := find(ctx, repo, ids)
		if err != nil {
			return err
		}
		if existing == nil {
			now := s.now()
			c := Customer{
				ID:             uuid.New(),
				Mobile:         ids.Mobile,
				NationalID:     ids.NationalID,
				NationalIDRef:  ids.NationalIDRef,
				UCID:           ids.UCID,
				PriorAppNumber: ids.PriorAppNumber,
				Attributes:     attrs,
				DoNotDisturb:   false,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := repo.Create(ctx, c); err != nil {
				return err
			}
			result = &c
			created = true
			return nil
		}
		merge(existing, ids, attrs)
		existing.UpdatedAt = s.now()
		if err := repo.Update(ctx, *existing); err != nil {
			return err
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func merge(c *Customer, ids Identifiers, attrs map[string]any) {
	if c.Mobile == "" {
		c.Mobile = ids.Mobile
	}
	if c.NationalID == "" {
		c.NationalID = ids.NationalID
	}
	if c.NationalIDRef == "" {
		c.NationalIDRef = ids.NationalIDRef
	}
	if c.UCID == "" {
		c.UCID = ids.UCID
	}
	if c.PriorAppNumber == "" {
		c.PriorAppNumber = ids.PriorAppNumber
	}
	if len(attrs) == 0 {
		return
	}
	if c.Attributes == nil {
		c.Attributes = make(map[string]any, len(attrs))
	}
	for k, v := range attrs {
		c.Attributes[k] = v
	}
}

// Get returns one customer by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return s.repo.Get(ctx, id)
}
