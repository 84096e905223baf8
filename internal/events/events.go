package events

import (
	"context"
	"errors"

	"triage-chatbot/pkg"
)

// Publisher announces that a patient finished structured triage and is
// waiting for a clinician.
type Publisher interface {
	PatientReady(ctx context.Context, ev pkg.PatientReady) error
}

// Multi fans an event out to several publishers.  Every publisher is tried;
// the errors are joined.
type Multi []Publisher

// PatientReady sends ev to every publisher in order.
func (m Multi) PatientReady(ctx context.Context, ev pkg.PatientReady) error {
	var errs []error
	for _, p := range m {
		if err := p.PatientReady(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
