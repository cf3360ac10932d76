package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/lock"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

type BlockRequest struct {
	ClinicID string
	// StaffID is optional; without it the block closes the whole clinic for
	// the window.
	StaffID   string
	Date      string
	StartTime string
	EndTime   string
	Reason    string
}

// CreateBlock reserves time without a patient. A staff block must not overlap
// that staff member's bookings; a clinic-wide block is always accepted and
// simply hides the window from the grid. Blocks emit no events and are
// removed with Cancel.
func (c *Controller) CreateBlock(ctx context.Context, req BlockRequest) (model.Appointment, error) {
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.ClinicID == "" {
		return model.Appointment{}, fmt.Errorf("clinic_id required: %w", model.ErrInvalidInput)
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%v: %w", err, model.ErrInvalidInput)
	}
	start, err := model.ParseClock(req.StartTime)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%v: %w", err, model.ErrInvalidInput)
	}
	end, err := model.ParseClock(req.EndTime)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%v: %w", err, model.ErrInvalidInput)
	}
	window := model.Interval{Start: start, End: end}
	if !window.Valid() {
		return model.Appointment{}, fmt.Errorf("block end must be after start: %w", model.ErrInvalidInput)
	}

	clinic, err := c.catalog.Clinic(ctx, req.ClinicID)
	if err != nil {
		return model.Appointment{}, err
	}

	if req.StaffID != "" {
		unlock, err := c.locker.Lock(ctx, lock.StaffDayKey(clinic.ID, req.StaffID, model.FormatDate(date)))
		if err != nil {
			return model.Appointment{}, fmt.Errorf("lock staff calendar: %w", err)
		}
		defer unlock()
	}

	now := c.now().UTC()
	block := model.Appointment{
		ID:        c.newID(),
		ClinicID:  clinic.ID,
		Date:      date,
		Start:     start,
		End:       end,
		StaffID:   req.StaffID,
		Status:    model.StatusConfirmed,
		IsBlock:   true,
		CreatedAt: now,
		UpdatedAt: now,
		// The label shows in calendar listings where a patient name would.
		PatientName: strings.TrimSpace(req.Reason),
	}
	err = c.store.WithinTx(ctx, func(tx Tx) error {
		if block.StaffID != "" {
			data, err := tx.BookingData(ctx, clinic.ID, date)
			if err != nil {
				return err
			}
			for _, a := range data.Appointments {
				if a.Date.Equal(date) && a.Blocking() {
					for _, iv := range a.Busy()[block.StaffID] {
						if iv.Overlaps(window) {
							return fmt.Errorf("staff %s is booked at %s: %w", block.StaffID, iv, model.ErrSlotUnavailable)
						}
					}
				}
			}
		}
		return tx.InsertAppointment(ctx, block)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	c.logger.Info("block created", "appointment_id", block.ID, "clinic_id", clinic.ID, "staff_id", block.StaffID, "date", req.Date)
	return block, nil
}
