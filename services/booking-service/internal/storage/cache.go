package storage

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// ConfigSource is the uncached clinic configuration and booking reader.
type ConfigSource interface {
	Clinic(ctx context.Context, clinicID string) (model.Clinic, error)
	Treatment(ctx context.Context, clinicID, treatmentID string) (model.Treatment, error)
	Staff(ctx context.Context, clinicID string) ([]model.Staff, error)
	DutyRecords(ctx context.Context, clinicID string, from, to time.Time) ([]model.DutyRecord, error)
	Appointments(ctx context.Context, clinicID string, from, to time.Time) ([]model.Appointment, error)
}

// CachedCatalog keeps clinic calendars, treatments and staff lists in a
// TTL-bounded LRU. Duty records and appointments always go to the source.
type CachedCatalog struct {
	src        ConfigSource
	clinics    *expirable.LRU[string, model.Clinic]
	treatments *expirable.LRU[string, model.Treatment]
	staff      *expirable.LRU[string, []model.Staff]
}

func NewCachedCatalog(src ConfigSource, size int, ttl time.Duration) *CachedCatalog {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedCatalog{
		src:        src,
		clinics:    expirable.NewLRU[string, model.Clinic](size, nil, ttl),
		treatments: expirable.NewLRU[string, model.Treatment](size*8, nil, ttl),
		staff:      expirable.NewLRU[string, []model.Staff](size, nil, ttl),
	}
}

func (c *CachedCatalog) Clinic(ctx context.Context, clinicID string) (model.Clinic, error) {
	if v, ok := c.clinics.Get(clinicID); ok {
		return v, nil
	}
	v, err := c.src.Clinic(ctx, clinicID)
	if err != nil {
		return model.Clinic{}, err
	}
	c.clinics.Add(clinicID, v)
	return v, nil
}

func (c *CachedCatalog) Treatment(ctx context.Context, clinicID, treatmentID string) (model.Treatment, error) {
	key := clinicID + "/" + treatmentID
	if v, ok := c.treatments.Get(key); ok {
		return v, nil
	}
	v, err := c.src.Treatment(ctx, clinicID, treatmentID)
	if err != nil {
		return model.Treatment{}, err
	}
	c.treatments.Add(key, v)
	return v, nil
}

func (c *CachedCatalog) Staff(ctx context.Context, clinicID string) ([]model.Staff, error) {
	if v, ok := c.staff.Get(clinicID); ok {
		return v, nil
	}
	v, err := c.src.Staff(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	c.staff.Add(clinicID, v)
	return v, nil
}

func (c *CachedCatalog) DutyRecords(ctx context.Context, clinicID string, from, to time.Time) ([]model.DutyRecord, error) {
	return c.src.DutyRecords(ctx, clinicID, from, to)
}

func (c *CachedCatalog) Appointments(ctx context.Context, clinicID string, from, to time.Time) ([]model.Appointment, error) {
	return c.src.Appointments(ctx, clinicID, from, to)
}

// Invalidate drops everything cached for clinicID.
func (c *CachedCatalog) Invalidate(clinicID string) {
	c.clinics.Remove(clinicID)
	c.staff.Remove(clinicID)
	prefix := clinicID + "/"
	for _, k := range c.treatments.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.treatments.Remove(k)
		}
	}
}
