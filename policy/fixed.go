package policy

import (
	"context"

	sr "github.com/ineyio/searchrouter"
)

// Fixed always resolves auto to the same strategy.
type Fixed struct {
	Strategy string
}

var _ sr.Selector = (*Fixed)(nil)

func (f *Fixed) Select(context.Context, sr.Availability) string {
	return f.Strategy
}
