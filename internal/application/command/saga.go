package command

import (
	"context"
	stderrors "errors"
)

// saga pairs forward steps with their inverse; compensate runs the inverses newest first
type saga struct {
	compensations []func(ctx context.Context) error
}

func (s *saga) onFailure(inverse func(ctx context.Context) error) {
	s.compensations = append(s.compensations, inverse)
}

func (s *saga) compensate(ctx context.Context) error {
	var errs []error
	for i := len(s.compensations) - 1; i >= 0; i-- {
		if err := s.compensations[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.compensations = nil
	return stderrors.Join(errs...)
}
