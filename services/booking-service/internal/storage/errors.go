package storage

import (
	"fmt"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// classify maps driver errors onto the domain sentinels.
func classify(what string, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNoRows(err):
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	case db.IsExclusionViolation(err):
		return fmt.Errorf("%s: %w", what, model.ErrSlotUnavailable)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
