package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// MaxSecondaryStaff bounds the staff assigned beyond the primary.
const MaxSecondaryStaff = 2

// Assignment is the time one staff member spends on one step of an appointment.
type Assignment struct {
	StaffID string
	Step    int
	Start   Minute
	End     Minute
}

func (a Assignment) Interval() Interval {
	return Interval{Start: a.Start, End: a.End}
}

type Appointment struct {
	ID               string
	ClinicID         string
	PatientID        string
	PatientName      string
	PatientEmail     string
	PatientPhone     string
	PatientLineID    string
	PreferredChannel string
	TreatmentID      string
	TreatmentName    string
	Date             time.Time
	Start            Minute
	End              Minute
	StaffID          string
	SecondaryStaff   []string
	Assignments      []Assignment
	Status           Status
	// IsBlock marks a time block rather than a patient booking. A block with no
	// StaffID closes the whole clinic for its interval.
	IsBlock         bool
	RescheduledFrom string
	CancelledAt     *time.Time
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.Start, End: a.End}
}

// StaffIDs returns primary then secondary staff ids.
func (a Appointment) StaffIDs() []string {
	out := make([]string, 0, 1+len(a.SecondaryStaff))
	if a.StaffID != "" {
		out = append(out, a.StaffID)
	}
	for _, id := range a.SecondaryStaff {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Busy returns each staff member's occupied intervals. Without explicit
// assignments every assigned staff member is busy for the whole appointment.
func (a Appointment) Busy() map[string][]Interval {
	out := map[string][]Interval{}
	if len(a.Assignments) > 0 {
		for _, as := range a.Assignments {
			if as.StaffID != "" {
				out[as.StaffID] = append(out[as.StaffID], as.Interval())
			}
		}
		return out
	}
	for _, id := range a.StaffIDs() {
		out[id] = append(out[id], a.Interval())
	}
	return out
}

// ClinicWide reports a block with no staff, which closes the clinic for its interval.
func (a Appointment) ClinicWide() bool {
	return a.IsBlock && a.StaffID == "" && len(a.SecondaryStaff) == 0 && len(a.Assignments) == 0
}

// Blocking reports whether the appointment occupies its interval.
func (a Appointment) Blocking() bool {
	return a.Status != StatusCancelled
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted, StatusNoShow},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Active reports whether the appointment can still change (pending or confirmed).
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}
