package domain

import (
	"fmt"
	"strings"
)

// Availability is the coarse presence state a user shows to others.
type Availability string

const (
	AvailabilityAvailable    Availability = "Available"
	AvailabilityBusy         Availability = "Busy"
	AvailabilityDoNotDisturb Availability = "DoNotDisturb"
	AvailabilityBeRightBack  Availability = "BeRightBack"
	AvailabilityAway         Availability = "Away"
	AvailabilityOffline      Availability = "Offline"
)

var availabilityAliases = map[string]Availability{
	"available":    AvailabilityAvailable,
	"online":       AvailabilityAvailable,
	"busy":         AvailabilityBusy,
	"donotdisturb": AvailabilityDoNotDisturb,
	"dnd":          AvailabilityDoNotDisturb,
	"berightback":  AvailabilityBeRightBack,
	"brb":          AvailabilityBeRightBack,
	"away":         AvailabilityAway,
	"offline":      AvailabilityOffline,
}

// ParseAvailability accepts the canonical names case-insensitively plus a few
// short forms such as "dnd" and "brb".
func ParseAvailability(s string) (Availability, error) {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.TrimSpace(s)))
	if a, ok := availabilityAliases[key]; ok {
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPresence, s)
}

// Activity is the activity paired with a in a preferred presence request.
func (a Availability) Activity() string {
	if a == AvailabilityOffline {
		return "OffWork"
	}
	return string(a)
}

type Presence struct {
	UserID       string
	Availability string
	Activity     string
}
