package models

import "time"

// OccurrenceKeyTimeLayout is the key format of daily occurrences carrying a time anchor.
const OccurrenceKeyTimeLayout = "2006-01-02T15:04"

// Occurrence is a single due date derived from a program's recurrence rule.
type Occurrence struct {
	Key     string    `json:"key"`
	DueAt   time.Time `json:"dueAt"`
	HasTime bool      `json:"hasTime"`
}

// Date returns the calendar date the occurrence falls on.
func (o Occurrence) Date() Date {
	return NewDate(o.DueAt.Year(), o.DueAt.Month(), o.DueAt.Day())
}
