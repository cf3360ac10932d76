package notify

import (
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/md-rashed-zaman/clinicbook/services/scheduler-service/internal/model"
)

// Matches {{name}} before {name} so the doubled form is consumed whole.
var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}|\{([a-zA-Z0-9_]+)\}`)

// Render substitutes {name} and {{name}} tokens. Unknown names are left as
// written.
func Render(body string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(body, func(tok string) string {
		m := placeholder.FindStringSubmatch(tok)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if v, ok := vars[name]; ok {
			return v
		}
		return tok
	})
}

const (
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04"
	dateTimeLayout = "2006-01-02 15:04"
)

// Vars are the values a template body may reference.
type Vars struct {
	PatientName   string
	ClinicName    string
	TreatmentName string
	Start         time.Time
	Previous      time.Time
	CancelReason  string
}

func (v Vars) Map() map[string]string {
	m := map[string]string{
		"patient_name":   v.PatientName,
		"clinic_name":    v.ClinicName,
		"treatment_name": v.TreatmentName,
		"cancel_reason":  v.CancelReason,
	}
	if !v.Start.IsZero() {
		m["appointment_date"] = v.Start.Format(dateLayout)
		m["appointment_time"] = v.Start.Format(timeLayout)
		m["appointment_datetime"] = v.Start.Format(dateTimeLayout)
		m["new_datetime"] = v.Start.Format(dateTimeLayout)
	}
	if !v.Previous.IsZero() {
		m["old_datetime"] = v.Previous.Format(dateTimeLayout)
	}
	return m
}

// SMSLimit is the length the generic body is cut to when it goes out by SMS.
const SMSLimit = 160

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Message is the channel, address and body chosen for one notification.
type Message struct {
	Channel   model.Channel
	Recipient string
	Subject   string
	Body      string
	// generic is set when Body is the template's fallback body.
	generic bool
}

// Render fills in the subject and body. A generic body sent by SMS is cut to
// SMSLimit after substitution.
func (m Message) Render(vars map[string]string) Message {
	m.Subject = Render(m.Subject, vars)
	m.Body = Render(m.Body, vars)
	if m.Channel == model.ChannelSMS && m.generic {
		m.Body = truncate(m.Body, SMSLimit)
	}
	return m
}

// SelectChannel picks the channel and body for a patient. The preferred
// channel wins when the patient has an address for it and the template has a
// body for it, falling back to the generic body. Otherwise channels are tried
// in LINE, email, SMS order, first by channel-specific body and then by the
// generic body. ok is false when no channel can reach the patient.
func SelectChannel(t model.Template, c model.Contact) (Message, bool) {
	specific := func(ch model.Channel) string {
		switch ch {
		case model.ChannelLine:
			return t.LineBody
		case model.ChannelEmail:
			return t.EmailBody
		case model.ChannelSMS:
			return t.SMSBody
		}
		return ""
	}
	build := func(ch model.Channel, body string, generic bool) Message {
		msg := Message{Channel: ch, Recipient: c.Address(ch), Body: body, generic: generic}
		if ch == model.ChannelEmail {
			msg.Subject = t.EmailSubject
			if msg.Subject == "" {
				msg.Subject = t.Name
			}
		}
		return msg
	}

	if pc := c.PreferredChannel; pc != "" && c.Address(pc) != "" {
		if body := specific(pc); body != "" {
			return build(pc, body, false), true
		}
		if t.Body != "" {
			return build(pc, t.Body, true), true
		}
	}
	for _, ch := range model.ChannelPriority {
		if c.Address(ch) != "" && specific(ch) != "" {
			return build(ch, specific(ch), false), true
		}
	}
	if t.Body == "" {
		return Message{}, false
	}
	for _, ch := range model.ChannelPriority {
		if c.Address(ch) != "" {
			return build(ch, t.Body, true), true
		}
	}
	return Message{}, false
}
