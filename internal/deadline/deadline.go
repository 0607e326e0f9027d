// Package deadline computes when a booking's service starts, ends and when
// its status display should close.
package deadline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
)

const (
	dateLayout = "2006-01-02"

	DefaultDurationMinutes = 60
	DefaultGraceMinutes    = 5
)

// clockTime is a wall clock time of day.
type clockTime struct {
	hour, minute int
}

var defaultClockTime = clockTime{hour: 9, minute: 0}

// timeLabels maps the labels offered by the booking form to clock times.
var timeLabels = map[string]clockTime{
	"ভোর ৫:০০":     {5, 0},
	"ভোর ৬:০০":     {6, 0},
	"সকাল ৬:০০":    {6, 0},
	"সকাল ৭:০০":    {7, 0},
	"সকাল ৮:০০":    {8, 0},
	"সকাল ৯:০০":    {9, 0},
	"সকাল ১০:০০":   {10, 0},
	"সকাল ১১:০০":   {11, 0},
	"দুপুর ১২:০০":  {12, 0},
	"দুপুর ১:০০":   {13, 0},
	"দুপুর ২:০০":   {14, 0},
	"বিকাল ৩:০০":   {15, 0},
	"বিকাল ৪:০০":   {16, 0},
	"বিকাল ৫:০০":   {17, 0},
	"সন্ধ্যা ৬:০০": {18, 0},
	"সন্ধ্যা ৭:০০": {19, 0},
	"রাত ৮:০০":     {20, 0},
	"রাত ৯:০০":     {21, 0},
}

// serviceDurations maps service names to their duration in minutes.
var serviceDurations = map[string]int{
	"নিত্য পূজা":       30,
	"বিশেষ অর্চনা":     60,
	"মহাপ্রসাদ ভোগ":    45,
	"সত্যনারায়ণ পূজা": 120,
	"অন্নপ্রাশন":       90,
	"উপনয়ন":           150,
	"বিবাহ":            180,
	"শ্রাদ্ধ":          120,
	"গৃহপ্রবেশ পূজা":   90,
	"হোম যজ্ঞ":         120,
}

// ServiceDuration returns the duration of a named service, or the default
// duration for an unknown name.
func ServiceDuration(serviceName string) int {
	if d, ok := serviceDurations[strings.TrimSpace(serviceName)]; ok {
		return d
	}
	return DefaultDurationMinutes
}

// resolveTimeLabel maps a time label to a clock time. Besides the table it
// accepts plain "HH:MM" labels; anything else yields the default.
func resolveTimeLabel(label string) clockTime {
	label = strings.TrimSpace(label)
	if ct, ok := timeLabels[label]; ok {
		return ct
	}

	h, m, ok := strings.Cut(label, ":")
	if !ok {
		return defaultClockTime
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return defaultClockTime
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return defaultClockTime
	}
	return clockTime{hour: hour, minute: minute}
}

type Calculator struct {
	loc          *time.Location
	graceMinutes int
}

// NewCalculator returns a calculator resolving dates in loc. A nil loc
// means UTC; a non-positive grace uses DefaultGraceMinutes.
func NewCalculator(loc *time.Location, graceMinutes int) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	if graceMinutes <= 0 {
		graceMinutes = DefaultGraceMinutes
	}
	return &Calculator{loc: loc, graceMinutes: graceMinutes}
}

func (c *Calculator) Location() *time.Location {
	return c.loc
}

// Compute returns the schedule of a service on dateLabel at timeLabel.
// Unknown time labels use the default clock time; only an unparseable date
// is an error.
func (c *Calculator) Compute(dateLabel, timeLabel string, durationMinutes, graceMinutes int) (types.AutoCloseSchedule, error) {
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(dateLabel), c.loc)
	if err != nil {
		return types.AutoCloseSchedule{}, fmt.Errorf("parse date %q: %w", dateLabel, err)
	}

	if durationMinutes <= 0 {
		durationMinutes = DefaultDurationMinutes
	}
	if graceMinutes <= 0 {
		graceMinutes = 1
	}

	ct := resolveTimeLabel(timeLabel)
	start := time.Date(day.Year(), day.Month(), day.Day(), ct.hour, ct.minute, 0, 0, c.loc)
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	return types.AutoCloseSchedule{
		StartAt:     start,
		EndAt:       end,
		AutoCloseAt: end.Add(time.Duration(graceMinutes) * time.Minute),
	}, nil
}

// ForBooking computes the schedule of b using the service duration table and
// the calculator's grace period.
func (c *Calculator) ForBooking(b types.Booking) (types.AutoCloseSchedule, error) {
	return c.Compute(b.Date, b.Time, ServiceDuration(b.ServiceName), c.graceMinutes)
}
