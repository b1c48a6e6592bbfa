package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// Multi hands the report to every sink in order. A failing sink does not
// stop the rest.
type Multi []ResultSink

func (m Multi) Name() string {
	return "multi"
}

func (m Multi) Save(ctx context.Context, report Report) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, report); err != nil {
			log.Error("Saving results failed", "sink", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
			continue
		}
		log.Debug("Results saved", "sink", s.Name())
	}
	return errors.Join(errs...)
}
