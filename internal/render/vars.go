package render

import "github.com/shineum/bulk-mailer/internal/recipient"

// Defaults applied when a recipient row omits a field.
const (
	DefaultName       = "Valued Member"
	DefaultCompany    = "Tamil Nadu JUG"
	DefaultEventDate  = "August 30, 2025"
	DefaultEventVenue = "Kongu Engineering College"
	DefaultEventTime  = "9:00 AM – 4:00 PM"
)

// Vars are the values bound into a template for one recipient.
type Vars map[string]string

// Bind builds the template variables for rec. Every source column is exposed
// under its own name; the well-known fields are also exposed under their
// template names with documented defaults.
func Bind(rec recipient.Record) Vars {
	vars := make(Vars, len(rec)+6)
	for k, v := range rec {
		vars[k] = v
	}

	vars["email"] = rec.Email()
	vars["recipient_name"] = rec.Get("name", DefaultName)
	vars["company_name"] = rec.Get("company", DefaultCompany)
	vars["event_date"] = rec.Get("event_date", DefaultEventDate)
	vars["event_venue"] = rec.Get("event_venue", DefaultEventVenue)
	vars["event_time"] = rec.Get("event_time", DefaultEventTime)

	return vars
}
