package streams

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/lostfound-sync/internal/domain"
)

// Filter is a single equality match on a string attribute, written "column=eq.value".
// The zero Filter matches everything.
type Filter struct {
	Column string
	Value  string
}

func ParseFilter(s string) (Filter, error) {
	if s == "" {
		return Filter{}, nil
	}
	col, rest, ok := strings.Cut(s, "=")
	if !ok || col == "" {
		return Filter{}, fmt.Errorf("filter %q: %w", s, domain.ErrBadRequest)
	}
	val, ok := strings.CutPrefix(rest, "eq.")
	if !ok {
		return Filter{}, fmt.Errorf("filter %q: only eq is supported: %w", s, domain.ErrBadRequest)
	}
	return Filter{Column: col, Value: val}, nil
}

// Match reports whether image carries Column == Value.
func (f Filter) Match(image map[string]types.AttributeValue) bool {
	if f.Column == "" {
		return true
	}
	s, ok := image[f.Column].(*types.AttributeValueMemberS)
	return ok && s.Value == f.Value
}
