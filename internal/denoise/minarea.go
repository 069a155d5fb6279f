package denoise

import (
	"context"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
)

// MinAreaFilter drops boxes smaller than a pixel area
type MinAreaFilter struct {
	min int
}

// NewMinAreaFilter returns nil when min is not positive, which New skips
func NewMinAreaFilter(min int) Filter {
	if min <= 0 {
		return nil
	}
	return &MinAreaFilter{min: min}
}

func (f *MinAreaFilter) Name() string { return "min-area" }

func (f *MinAreaFilter) Apply(_ context.Context, res *detection.Result) (*detection.Result, error) {
	kept := res.Objects[:0]
	for _, obj := range res.Objects {
		if obj.Box.Area() >= f.min {
			kept = append(kept, obj)
		}
	}
	res.Objects = kept
	return res, nil
}
