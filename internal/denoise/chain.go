// Package denoise holds the ordered filters that prune repeated or
// reviewer-rejected detections before results are dispatched.
package denoise

import (
	"context"
	"errors"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
)

// Filter edits a detection result. Apply receives a private copy and
// returns the edited copy; the chain commits it onto the shared result.
type Filter interface {
	Name() string
	Apply(ctx context.Context, res *detection.Result) (*detection.Result, error)
}

var errNilResult = errors.New("filter returned no result")

// Chain applies filters in order
type Chain struct {
	filters []Filter
}

// New builds a chain from filters, skipping nils
func New(filters ...Filter) *Chain {
	c := &Chain{}
	for _, f := range filters {
		if f != nil {
			c.filters = append(c.filters, f)
		}
	}
	return c
}

// Len returns the number of filters
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.filters)
}

// Names lists the filters in application order
func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.filters))
	for i, f := range c.filters {
		names[i] = f.Name()
	}
	return names
}

// Run applies every filter to res and returns how many failed. A failed
// filter leaves res exactly as it was before that filter ran.
func (c *Chain) Run(ctx context.Context, res *detection.Result, guard detection.Guard) int {
	if c == nil {
		return 0
	}
	if guard == nil {
		guard = func(_, _ string, fn func() error) error { return fn() }
	}

	failed := 0
	for _, f := range c.filters {
		var out *detection.Result
		err := guard("filter", f.Name(), func() error {
			edited, err := f.Apply(ctx, res.Clone())
			if err != nil {
				return err
			}
			if edited == nil {
				return errNilResult
			}
			out = edited
			return nil
		})
		if err != nil {
			failed++
			continue
		}
		res.Commit(out)
	}
	return failed
}
