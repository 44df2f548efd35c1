package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// DateLayout is the calendar-date wire format used for validity windows and occurrence keys.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time-of-day component.
type Date struct {
	time.Time
}

// NewDate builds a Date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", raw, err)
	}
	return Date{t}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MarshalJSON renders the date as a YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts YYYY-MM-DD strings and null.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores the date in a DATE column.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// Scan reads DATE columns returned as time or text.
func (d *Date) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = NewDate(v.Year(), v.Month(), v.Day())
		return nil
	case []byte:
		return d.scanString(string(v))
	case string:
		return d.scanString(v)
	default:
		return fmt.Errorf("unsupported type %T for Date", value)
	}
}

func (d *Date) scanString(raw string) error {
	if len(raw) > len(DateLayout) {
		raw = raw[:len(DateLayout)]
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// RecurrenceKind enumerates the supported reporting cadences.
type RecurrenceKind string

const (
	RecurrenceDaily     RecurrenceKind = "daily"
	RecurrenceWeekly    RecurrenceKind = "weekly"
	RecurrenceMonthly   RecurrenceKind = "monthly"
	RecurrenceQuarterly RecurrenceKind = "quarterly"
	RecurrenceYearly    RecurrenceKind = "yearly"
)

// Recurrence is the tagged recurrence rule of a program. Only the anchors
// relevant to Kind are read; absent anchors stay nil so they can be rejected.
type Recurrence struct {
	Kind       RecurrenceKind `json:"kind"`
	Time       string         `json:"time,omitempty"`
	Weekday    string         `json:"weekday,omitempty"`
	DayOfMonth *int           `json:"dayOfMonth,omitempty"`
	Quarter    *int           `json:"quarter,omitempty"`
	Month      *int           `json:"month,omitempty"`
}

// Value marshals the recurrence to JSON for persistence.
func (r Recurrence) Value() (driver.Value, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal recurrence: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSONB recurrence column.
func (r *Recurrence) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*r = Recurrence{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for Recurrence", value)
	}
	if len(data) == 0 {
		*r = Recurrence{}
		return nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("unmarshal recurrence: %w", err)
	}
	return nil
}

// Program is a named reporting obligation owed by its participants on every occurrence.
type Program struct {
	ID           string         `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	Description  string         `db:"description" json:"description"`
	Recurrence   Recurrence     `db:"recurrence" json:"recurrence"`
	ValidFrom    Date           `db:"valid_from" json:"valid_from"`
	ValidTo      Date           `db:"valid_to" json:"valid_to"`
	Participants pq.StringArray `db:"participants" json:"participants"`
	CreatedBy    string         `db:"created_by" json:"created_by"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether the user owes submissions to the program.
func (p *Program) HasParticipant(userID string) bool {
	for _, id := range p.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// ProgramFilter scopes program listings.
type ProgramFilter struct {
	Search        string
	ParticipantID string
	CreatedBy     string
	Page          int
	PageSize      int
}
