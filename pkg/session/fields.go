package session

import (
	"strings"
	"time"
)

// DateLayout is the format of trip dates.
const DateLayout = "2006-01-02"

const (
	maxTextLen   = 2000
	maxTravelers = 50
	maxAge       = 130
)

// Memory is the structured data collected during a planning session. A nil
// field has not been collected yet.
type Memory struct {
	Trip Trip     `json:"trip"`
	User Traveler `json:"user"`
}

// Trip holds the trip details.
type Trip struct {
	Location      *string  `json:"location,omitempty"`
	Destination   *string  `json:"destination,omitempty"`
	DepartureDate *string  `json:"departure_date,omitempty"`
	ReturnDate    *string  `json:"return_date,omitempty"`
	Budget        *float64 `json:"budget,omitempty"`
	Adults        *int     `json:"adults,omitempty"`
	Children      *int     `json:"children,omitempty"`
	Description   *string  `json:"description,omitempty"`
}

// Traveler holds what is known about the person planning the trip.
type Traveler struct {
	Name        *string `json:"name,omitempty"`
	Age         *int    `json:"age,omitempty"`
	Description *string `json:"description,omitempty"`
}

// field describes one tracked attribute of Memory.
type field struct {
	name     string
	required bool
	isSet    func(m *Memory) bool
	clear    func(m *Memory)
	merge    func(dst, src *Memory, overwrite bool) bool
	check    func(m *Memory) string
}

func makeField[T any](name string, required bool, ptr func(*Memory) **T, check func(T) string) field {
	return field{
		name:     name,
		required: required,
		isSet:    func(m *Memory) bool { return *ptr(m) != nil },
		clear:    func(m *Memory) { *ptr(m) = nil },
		merge: func(dst, src *Memory, overwrite bool) bool {
			v, d := *ptr(src), ptr(dst)
			if v == nil || (*d != nil && !overwrite) {
				return false
			}
			c := *v
			*d = &c
			return true
		},
		check: func(m *Memory) string {
			v := *ptr(m)
			if v == nil {
				return ""
			}
			return check(*v)
		},
	}
}

// fields lists every tracked attribute in presentation order.
var fields = []field{
	makeField("trip.location", false, func(m *Memory) **string { return &m.Trip.Location }, checkText),
	makeField("trip.destination", true, func(m *Memory) **string { return &m.Trip.Destination }, checkText),
	makeField("trip.departure_date", true, func(m *Memory) **string { return &m.Trip.DepartureDate }, checkDate),
	makeField("trip.return_date", true, func(m *Memory) **string { return &m.Trip.ReturnDate }, checkDate),
	makeField("trip.budget", true, func(m *Memory) **float64 { return &m.Trip.Budget }, checkBudget),
	makeField("trip.adults", true, func(m *Memory) **int { return &m.Trip.Adults }, checkCount(1)),
	makeField("trip.children", false, func(m *Memory) **int { return &m.Trip.Children }, checkCount(0)),
	makeField("trip.description", false, func(m *Memory) **string { return &m.Trip.Description }, checkText),
	makeField("user.name", false, func(m *Memory) **string { return &m.User.Name }, checkText),
	makeField("user.age", false, func(m *Memory) **int { return &m.User.Age }, checkAge),
	makeField("user.description", true, func(m *Memory) **string { return &m.User.Description }, checkText),
}

// Overlay copies every non-nil field of src into m. Nil fields in src never
// clear a value in m. Reports whether anything was written.
func (m *Memory) Overlay(src Memory) bool {
	return m.merge(&src, true)
}

// FillMissing copies non-nil fields of src into m only where m is still
// nil. Reports whether anything was written.
func (m *Memory) FillMissing(src Memory) bool {
	return m.merge(&src, false)
}

// FillMissingOrdered is FillMissing that refuses dates from src which
// would leave the return date before the departure date. It returns the
// names of the refused fields.
func (m *Memory) FillMissingOrdered(src Memory) []string {
	merged := m.Clone()
	merged.FillMissing(src)
	if checkDateOrder(merged.Trip) == "" {
		*m = merged
		return nil
	}

	var dropped []string
	if src.Trip.DepartureDate != nil {
		src.Trip.DepartureDate = nil
		dropped = append(dropped, "trip.departure_date")
	}
	if src.Trip.ReturnDate != nil {
		src.Trip.ReturnDate = nil
		dropped = append(dropped, "trip.return_date")
	}
	m.FillMissing(src)
	return dropped
}

func (m *Memory) merge(src *Memory, overwrite bool) bool {
	changed := false
	for _, f := range fields {
		if f.merge(m, src, overwrite) {
			changed = true
		}
	}
	return changed
}

// Clone returns a deep copy of m.
func (m Memory) Clone() Memory {
	var c Memory
	c.merge(&m, true)
	return c
}

// Added returns the fields set in m that are nil in base.
func (m Memory) Added(base Memory) Memory {
	c := m.Clone()
	for _, f := range fields {
		if f.isSet(&base) {
			f.clear(&c)
		}
	}
	return c
}

// IsZero reports whether no field is set.
func (m Memory) IsZero() bool {
	for _, f := range fields {
		if f.isSet(&m) {
			return false
		}
	}
	return true
}

// Missing returns the names of required fields that are still nil.
func (m Memory) Missing() []string {
	var missing []string
	for _, f := range fields {
		if f.required && !f.isSet(&m) {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Complete reports whether every required field is set.
func (m Memory) Complete() bool {
	return len(m.Missing()) == 0
}

// Validate returns a *ValidationError for the first malformed field.
func (m Memory) Validate() error {
	for _, f := range fields {
		if reason := f.check(&m); reason != "" {
			return invalid(f.name, reason)
		}
	}
	if reason := checkDateOrder(m.Trip); reason != "" {
		return invalid("trip.return_date", reason)
	}
	return nil
}

// Sanitize returns a copy of m with every malformed field cleared, along
// with the names of the cleared fields.
func (m Memory) Sanitize() (Memory, []string) {
	c := m.Clone()
	var dropped []string
	for _, f := range fields {
		if f.check(&c) != "" {
			f.clear(&c)
			dropped = append(dropped, f.name)
		}
	}
	if checkDateOrder(c.Trip) != "" {
		c.Trip.ReturnDate = nil
		dropped = append(dropped, "trip.return_date")
	}
	return c, dropped
}

func checkText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "must not be empty"
	}
	if len(s) > maxTextLen {
		return "too long"
	}
	return ""
}

func checkDate(s string) string {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "must be a date in YYYY-MM-DD format"
	}
	return ""
}

func checkBudget(v float64) string {
	if v <= 0 {
		return "must be positive"
	}
	return ""
}

func checkCount(minimum int) func(int) string {
	return func(v int) string {
		if v < minimum || v > maxTravelers {
			return "out of range"
		}
		return ""
	}
}

func checkAge(v int) string {
	if v < 0 || v > maxAge {
		return "out of range"
	}
	return ""
}

// checkDateOrder rejects a return date earlier than the departure date.
func checkDateOrder(t Trip) string {
	if t.DepartureDate == nil || t.ReturnDate == nil {
		return ""
	}
	dep, err1 := time.Parse(DateLayout, *t.DepartureDate)
	ret, err2 := time.Parse(DateLayout, *t.ReturnDate)
	if err1 != nil || err2 != nil {
		return ""
	}
	if ret.Before(dep) {
		return "must not be before departure_date"
	}
	return ""
}

// ValidDate reports whether s is a calendar date in DateLayout.
func ValidDate(s string) bool {
	return checkDate(s) == ""
}
