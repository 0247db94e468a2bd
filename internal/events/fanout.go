package events

import (
	"context"
	"errors"

	"github.com/blackmichael/postboard/internal/domain"
)

// Fanout publishes every event to each of its publishers. All publishers are
// attempted; their errors are joined.
type Fanout []domain.EventPublisher

// PublishPostEvent implements domain.EventPublisher.
func (f Fanout) PublishPostEvent(ctx context.Context, ev domain.PostEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishPostEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
