package feed

import (
	"fmt"
	"log/slog"

	"github.com/lostfound-sync/internal/domain"
	"github.com/lostfound-sync/internal/pkg/validate"
)

// Decode turns a raw change into a typed event. Delete events only need the identity, so an old
// image that fails validation is still accepted as long as it carries an id.
func Decode[T domain.Entity](c RawChange) (domain.Event[T], error) {
	var v T
	switch c.Type {
	case TypeInsert, TypeUpdate:
		if c.New == nil {
			return domain.Event[T]{}, fmt.Errorf("%s without new record: %w", c.Type, domain.ErrBadRequest)
		}
		if err := c.New.Decode(&v); err != nil {
			return domain.Event[T]{}, fmt.Errorf("decode %s: %w", c.Type, err)
		}
		if err := validate.Struct(v); err != nil {
			return domain.Event[T]{}, fmt.Errorf("%s record: %v: %w", c.Type, err, domain.ErrBadRequest)
		}
		kind := domain.EventInsert
		if c.Type == TypeUpdate {
			kind = domain.EventUpdate
		}
		return domain.Event[T]{Kind: kind, Entity: v, ID: v.EntityID()}, nil
	case TypeDelete:
		if c.Old == nil {
			return domain.Event[T]{}, fmt.Errorf("DELETE without old record: %w", domain.ErrBadRequest)
		}
		if err := c.Old.Decode(&v); err != nil {
			return domain.Event[T]{}, fmt.Errorf("decode DELETE: %w", err)
		}
		if v.EntityID() == "" {
			return domain.Event[T]{}, fmt.Errorf("DELETE without id: %w", domain.ErrBadRequest)
		}
		return domain.Deleted[T](v.EntityID()), nil
	default:
		return domain.Event[T]{}, fmt.Errorf("unknown change type %q: %w", c.Type, domain.ErrBadRequest)
	}
}

// Valid drops fetched rows that fail the validation Decode applies to pushed rows, so a fetch and
// the feed agree on what a screen may hold. Each dropped row is logged.
func Valid[T domain.Entity](resource string, rows []T) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if err := validate.Struct(r); err != nil {
			slog.Warn("dropping fetched row", "resource", resource, "id", r.EntityID(), "err", err)
			continue
		}
		out = append(out, r)
	}
	return out
}
