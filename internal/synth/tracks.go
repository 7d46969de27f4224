package synth

import (
	"fmt"
	"strconv"
	"strings"
)

// TrackRange limits synthesis to tracks First through Last inclusive.
// A zero bound is open, so the zero value selects every track.
type TrackRange struct {
	First int
	Last  int
}

// All reports whether the range selects every track.
func (r TrackRange) All() bool {
	return r.First <= 0 && r.Last <= 0
}

// Contains reports whether track n is selected.
func (r TrackRange) Contains(n int) bool {
	if r.First > 0 && n < r.First {
		return false
	}
	if r.Last > 0 && n > r.Last {
		return false
	}
	return true
}

func (r TrackRange) String() string {
	switch {
	case r.All():
		return "all"
	case r.First == r.Last:
		return strconv.Itoa(r.First)
	}
	var sb strings.Builder
	if r.First > 0 {
		sb.WriteString(strconv.Itoa(r.First))
	}
	sb.WriteByte('-')
	if r.Last > 0 {
		sb.WriteString(strconv.Itoa(r.Last))
	}
	return sb.String()
}

// ParseTrackRange parses "N", "N-M", "N-" or "-M". Tracks are numbered
// from 1. An empty string selects every track.
func ParseTrackRange(s string) (TrackRange, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" {
		return TrackRange{}, nil
	}

	first, last, isRange := strings.Cut(s, "-")
	if !isRange {
		last = first
	}
	var r TrackRange
	var err error
	if r.First, err = parseTrackBound(first); err != nil {
		return TrackRange{}, fmt.Errorf("invalid track range %q: %w", s, err)
	}
	if r.Last, err = parseTrackBound(last); err != nil {
		return TrackRange{}, fmt.Errorf("invalid track range %q: %w", s, err)
	}
	if r.All() {
		return TrackRange{}, fmt.Errorf("invalid track range %q: no bounds", s)
	}
	if r.First > 0 && r.Last > 0 && r.First > r.Last {
		return TrackRange{}, fmt.Errorf("invalid track range %q: first track after last", s)
	}
	return r, nil
}

func parseTrackBound(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("track %d out of range", n)
	}
	return n, nil
}
