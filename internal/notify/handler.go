// Package notify sends detection results to notification channels
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendant/simple-detection-pipeline/internal/detection"
	"github.com/tendant/simple-detection-pipeline/internal/platform/logger"
)

// Predicate decides whether a result is worth a notification
type Predicate func(res *detection.Result) bool

// AnyLabel matches results carrying at least one of labels
func AnyLabel(labels ...string) Predicate {
	return func(res *detection.Result) bool {
		for _, l := range labels {
			if res.HasLabel(l) {
				return true
			}
		}
		return false
	}
}

// Options configures a Handler
type Options struct {
	Name      string
	Sender    Sender
	URLs      URLMapper
	Predicate Predicate
	Audience  *Audience
}

// Handler is a result handler that notifies an audience
type Handler struct {
	name      string
	sender    Sender
	urls      URLMapper
	predicate Predicate
	audience  *Audience
}

// New creates a Handler. A nil predicate accepts every result.
func New(opts Options) (*Handler, error) {
	if opts.Sender == nil {
		return nil, errors.New("notify: sender is required")
	}
	if opts.Audience == nil {
		opts.Audience = StaticAudience()
	}
	return &Handler{
		name:      opts.Name,
		sender:    opts.Sender,
		urls:      opts.URLs,
		predicate: opts.Predicate,
		audience:  opts.Audience,
	}, nil
}

func (h *Handler) Name() string { return "notify:" + h.name }

// Audience exposes the handler's recipients for lifecycle management
func (h *Handler) Audience() *Audience { return h.audience }

// Handle sends a message when the predicate accepts res
func (h *Handler) Handle(ctx context.Context, res *detection.Result) error {
	if h.predicate != nil && !h.predicate(res) {
		return nil
	}
	to := h.audience.Members()
	if len(to) == 0 {
		logger.C(ctx).Debug().Str("handler", h.Name()).Msg("no audience, skipping notification")
		return nil
	}

	drawn := res.Meta[detection.MetaDrawnImagePath]
	msg := Message{
		Channel:     h.name,
		To:          to,
		ImageID:     res.ImageID.String(),
		Camera:      res.ImageID.Channel,
		Timestamp:   res.ImageID.Timestamp,
		Labels:      res.Labels(),
		Objects:     res.Objects,
		ImageURL:    h.urls.ImageURL(drawn),
		RawImageURL: h.urls.RawImageURL(drawn),
	}
	if err := h.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to notify %s: %w", h.name, err)
	}
	return nil
}
