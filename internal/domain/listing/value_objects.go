package listing

import (
	"errors"
	"time"
)

var (
	ErrInvalidCategory    = errors.New("invalid ticket category")
	ErrInvalidServiceDate = errors.New("invalid service date")
)

type Category string

const (
	CategoryGuardian     Category = "guardian"
	CategoryDependent    Category = "dependent"
	CategoryPhysicalGood Category = "physical-good"
)

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.IsValid() {
		return "", ErrInvalidCategory
	}
	return c, nil
}

func (c Category) IsValid() bool {
	switch c {
	case CategoryGuardian, CategoryDependent, CategoryPhysicalGood:
		return true
	default:
		return false
	}
}

// ConsumesQuota reports whether units of this category count against the daily quota.
func (c Category) ConsumesQuota() bool {
	return c == CategoryGuardian || c == CategoryDependent
}

func (c Category) String() string {
	return string(c)
}

const serviceDateLayout = "2006-01-02"

// ServiceDate is a calendar day in the listing's local calendar, with no time-of-day.
type ServiceDate struct {
	t time.Time
}

func NewServiceDate(year int, month time.Month, day int) ServiceDate {
	return ServiceDate{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseServiceDate(s string) (ServiceDate, error) {
	t, err := time.Parse(serviceDateLayout, s)
	if err != nil {
		return ServiceDate{}, ErrInvalidServiceDate
	}
	return ServiceDate{t: t}, nil
}

func (d ServiceDate) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(serviceDateLayout)
}

func (d ServiceDate) Weekday() time.Weekday {
	return d.t.Weekday()
}

func (d ServiceDate) IsZero() bool {
	return d.t.IsZero()
}

// Before compares against the calendar day of now in UTC.
func (d ServiceDate) Before(now time.Time) bool {
	y, m, day := now.UTC().Date()
	return d.t.Before(time.Date(y, m, day, 0, 0, 0, 0, time.UTC))
}

func (d ServiceDate) Equal(other ServiceDate) bool {
	return d.t.Equal(other.t)
}
