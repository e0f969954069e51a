package models

import (
	"fmt"
	"strings"
)

// Cadence is how often a reminder repeats.
type Cadence string

const (
	CadenceNone    Cadence = "none"
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
	CadenceYearly  Cadence = "yearly"
)

// Cadences lists every known cadence in ascending period.
var Cadences = []Cadence{CadenceNone, CadenceDaily, CadenceWeekly, CadenceMonthly, CadenceYearly}

// ParseCadence accepts the canonical names plus the empty string (none).
func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CadenceNone, nil
	case CadenceNone, CadenceDaily, CadenceWeekly, CadenceMonthly, CadenceYearly:
		return c, nil
	default:
		return "", fmt.Errorf("invalid cadence: %s", s)
	}
}

// IsRepeating returns true for every cadence except none.
func (c Cadence) IsRepeating() bool {
	return c != CadenceNone && c != ""
}

// DeliveryMethod is how a reminder's triggers are registered with the native backends.
type DeliveryMethod string

const (
	// DeliveryNativeRecurring is a single registration the platform re-fires on its own.
	DeliveryNativeRecurring DeliveryMethod = "native_recurring"
	// DeliveryRollingWindow is a maintained set of one-shot registrations.
	DeliveryRollingWindow DeliveryMethod = "rolling_window"
)

// ParseDeliveryMethod validates a persisted delivery method.
func ParseDeliveryMethod(s string) (DeliveryMethod, error) {
	switch m := DeliveryMethod(s); m {
	case DeliveryNativeRecurring, DeliveryRollingWindow:
		return m, nil
	default:
		return "", fmt.Errorf("invalid delivery method: %s", s)
	}
}
