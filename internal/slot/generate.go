package slot

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidWindow   = errors.New("invalid slot window")
	ErrInvalidDuration = errors.New("appointment duration must be positive")
	ErrInvalidCapacity = errors.New("slot capacity must be a positive integer")
	ErrWindowTooSmall  = errors.New("window cannot fit a single appointment")
)

// GenerateParams describes one day's slot layout for a facility.
type GenerateParams struct {
	FacilityID uuid.UUID
	StartTime  string // HH:MM
	EndTime    string // HH:MM
	Duration   int    // minutes per appointment
	Rest       int    // minutes between appointments
	Capacity   int    // donors per slot
}

// BuildSlots produces the deterministic slot layout: a cursor advances
// from the window start by duration+rest, emitting a slot per step while a
// full appointment still fits. Tokens count up from 1.
func BuildSlots(p GenerateParams) ([]Slot, error) {
	start, err := parseClock(p.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start %q", ErrInvalidWindow, p.StartTime)
	}
	end, err := parseClock(p.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: end %q", ErrInvalidWindow, p.EndTime)
	}
	if start >= end {
		return nil, fmt.Errorf("%w: start must precede end", ErrInvalidWindow)
	}
	if p.Duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if p.Rest < 0 {
		return nil, fmt.Errorf("%w: rest must not be negative", ErrInvalidWindow)
	}
	if p.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	var slots []Slot
	token := 1
	for cursor := start; cursor+p.Duration <= end; cursor += p.Duration + p.Rest {
		slots = append(slots, Slot{
			ID:          uuid.New(),
			FacilityID:  p.FacilityID,
			StartMinute: cursor,
			EndMinute:   cursor + p.Duration,
			Token:       token,
			Capacity:    p.Capacity,
			Available:   true,
		})
		token++
	}

	if len(slots) == 0 {
		return nil, ErrWindowTooSmall
	}
	return slots, nil
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range: %q", s)
	}
	return h*60 + m, nil
}
