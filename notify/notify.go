// Package notify delivers install results to external consumers.
package notify

import (
	"context"
	"errors"

	"github.com/jacobweinstock/vmedia"
)

// Notifier sends a finished install run somewhere.
type Notifier interface {
	Notify(ctx context.Context, n vmedia.Notification) error
}

// Multi sends to every Notifier, even when earlier ones fail.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n vmedia.Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
