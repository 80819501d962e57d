package products

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"SanitizedInput/internal/sanitize"
)

type Kind int

const (
	KindCreated Kind = iota
	KindListed
	KindFound
	KindUpdated
	KindDeleted
	// KindRejectedInput: a body field contained a denylisted fragment.
	KindRejectedInput
	// KindRejectedID: the path id was exactly a denylisted token.
	KindRejectedID
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindListed:
		return "listed"
	case KindFound:
		return "found"
	case KindUpdated:
		return "updated"
	case KindDeleted:
		return "deleted"
	case KindRejectedInput:
		return "rejected_input"
	case KindRejectedID:
		return "rejected_id"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Outcome is the result of one operation. Product is set for Created, Found,
// Updated and Deleted; Products for Listed.
type Outcome struct {
	Kind     Kind
	Product  Product
	Products []Product
}

func (o Outcome) Rejected() bool {
	return o.Kind == KindRejectedInput || o.Kind == KindRejectedID
}

// Service screens input and then talks to the store. Rejected input never
// reaches the store. Length limits are enforced after screening, so a
// denylisted fragment is reported as such whatever the field length.
type Service struct {
	store    Store
	validate *validator.Validate
}

func NewService(store Store) *Service {
	return &Service{store: store, validate: newValidator()}
}

func screenFields(f Fields) bool {
	return sanitize.ContainsBlocked(
		f.Name,
		f.Description,
		sanitize.FormatFloat(f.Price),
		sanitize.FormatInt(f.Qty),
	)
}

// parseID accepts what an integer key column would match: plain integers and
// integral decimal forms such as "1.0" or "1e0". Anything else has no row.
func parseID(raw string) (int64, bool) {
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id, true
	}

	if raw == "" || strings.Trim(raw, "0123456789.eE+-") != "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func (s *Service) Create(ctx context.Context, f Fields) (Outcome, error) {
	if screenFields(f) {
		return Outcome{Kind: KindRejectedInput}, nil
	}
	if err := s.validate.Struct(f); err != nil {
		return Outcome{}, err
	}

	p, err := s.store.Insert(ctx, f)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: KindCreated, Product: p}, nil
}

// List is never screened: every row is returned whatever the caller sent.
func (s *Service) List(ctx context.Context) (Outcome, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: KindListed, Products: all}, nil
}

func (s *Service) Get(ctx context.Context, rawID string) (Outcome, error) {
	if sanitize.EqualsBlocked(rawID) {
		return Outcome{Kind: KindRejectedID}, nil
	}

	p, ok, err := s.lookup(ctx, rawID)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Kind: KindNotFound}, nil
	}
	return Outcome{Kind: KindFound, Product: p}, nil
}

// Update screens the body fields only; the id is not screened.
func (s *Service) Update(ctx context.Context, rawID string, f Fields) (Outcome, error) {
	if screenFields(f) {
		return Outcome{Kind: KindRejectedInput}, nil
	}
	if err := s.validate.Struct(f); err != nil {
		return Outcome{}, err
	}

	current, ok, err := s.lookup(ctx, rawID)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Kind: KindNotFound}, nil
	}

	p, err := s.store.Update(ctx, f.withID(current.ID))
	if errors.Is(err, ErrNotFound) {
		return Outcome{Kind: KindNotFound}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: KindUpdated, Product: p}, nil
}

// Delete returns the row as it was immediately before removal.
func (s *Service) Delete(ctx context.Context, rawID string) (Outcome, error) {
	if sanitize.EqualsBlocked(rawID) {
		return Outcome{Kind: KindRejectedID}, nil
	}

	p, ok, err := s.lookup(ctx, rawID)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Kind: KindNotFound}, nil
	}

	err = s.store.Delete(ctx, p.ID)
	if errors.Is(err, ErrNotFound) {
		return Outcome{Kind: KindNotFound}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: KindDeleted, Product: p}, nil
}

func (s *Service) lookup(ctx context.Context, rawID string) (Product, bool, error) {
	id, ok := parseID(rawID)
	if !ok {
		return Product{}, false, nil
	}
	return s.store.Get(ctx, id)
}
