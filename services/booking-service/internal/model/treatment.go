package model

type PatientType string

const (
	PatientNew       PatientType = "new"
	PatientReturning PatientType = "returning"
)

func ParsePatientType(s string) (PatientType, bool) {
	switch PatientType(s) {
	case PatientNew, PatientReturning:
		return PatientType(s), true
	}
	return "", false
}

// Step is one sequential part of a treatment. StaffIDs are in priority order.
type Step struct {
	TreatmentID     string
	Name            string
	DurationMinutes int
	StaffIDs        []string
}

type Treatment struct {
	ID                     string
	ClinicID               string
	Name                   string
	DurationMinutes        int
	AllowsNewPatient       bool
	AllowsReturningPatient bool
	WebBookable            bool
	// StaffIDs are staff attached to the treatment itself, in priority order.
	StaffIDs []string
	Steps    []Step
}

func (t Treatment) AllowsPatient(pt PatientType) bool {
	switch pt {
	case PatientNew:
		return t.AllowsNewPatient
	case PatientReturning:
		return t.AllowsReturningPatient
	}
	return false
}

// BookingSteps returns the sequential steps a booking occupies. A treatment with
// no steps is a single step using the treatment's own duration and staff.
func (t Treatment) BookingSteps() []Step {
	if len(t.Steps) == 0 {
		return []Step{{
			TreatmentID:     t.ID,
			Name:            t.Name,
			DurationMinutes: t.DurationMinutes,
			StaffIDs:        t.StaffIDs,
		}}
	}
	return t.Steps
}

// TotalMinutes is the sum of step durations, or the treatment duration when it
// has no steps.
func (t Treatment) TotalMinutes() int {
	if len(t.Steps) == 0 {
		return t.DurationMinutes
	}
	total := 0
	for _, s := range t.Steps {
		total += s.DurationMinutes
	}
	return total
}

// EligibleStaffIDs is the union of treatment and step staff, first-seen order.
func (t Treatment) EligibleStaffIDs() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(ids []string) {
		for _, id := range ids {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	add(t.StaffIDs)
	for _, s := range t.Steps {
		add(s.StaffIDs)
	}
	return out
}

// Bookable reports whether the treatment can produce slots at all.
func (t Treatment) Bookable() bool {
	if t.TotalMinutes() <= 0 {
		return false
	}
	for _, s := range t.BookingSteps() {
		if s.DurationMinutes <= 0 {
			return false
		}
	}
	return len(t.EligibleStaffIDs()) > 0
}
