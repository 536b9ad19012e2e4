package domain

import (
	"errors"
	"time"
)

var ErrInvalidWindow = errors.New("invalid reservation window")

// Billable returns the number of started hours between start and end.
func Billable(start, end time.Time) (int64, error) {
	if !end.After(start) {
		return 0, ErrInvalidWindow
	}

	d := end.Sub(start)
	hours := int64(d / time.Hour)
	if d%time.Hour != 0 {
		hours++
	}

	return hours, nil
}

// Quote prices a window: every started hour costs the hourly rate, and each
// 24h block is capped at the daily rate when one is set.
func Quote(hourly, daily int64, start, end time.Time) (int64, error) {
	hours, err := Billable(start, end)
	if err != nil {
		return 0, err
	}

	if daily <= 0 {
		return hours * hourly, nil
	}

	days, rest := hours/24, hours%24
	tail := rest * hourly
	if tail > daily {
		tail = daily
	}

	return days*daily + tail, nil
}
