// Package domain contains core domain types for the SmartFi data layer.
package domain

import "errors"

// ErrUnknownDemoProfile is returned when a phone number is not in the demo catalogue.
var ErrUnknownDemoProfile = errors.New("unknown demo profile")

// Mode is the controller's operating mode.
type Mode int

const (
	// ModeUnset means no mode has been selected yet.
	ModeUnset Mode = iota
	// ModeDemo serves one of the fixed demo financial scenarios.
	ModeDemo
	// ModeDelegated uses an identity-provider-backed real account.
	ModeDelegated
)

func (m Mode) String() string {
	switch m {
	case ModeDemo:
		return "demo"
	case ModeDelegated:
		return "delegated"
	default:
		return "unset"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Session is the installation's identity on the remote API.
type Session struct {
	ID          string `json:"sessionId"`
	Mode        Mode   `json:"mode"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// PersistedMode is the mode state read back from local persistence.
// Mode is ModeUnset when nothing was persisted.
type PersistedMode struct {
	Mode        Mode
	PhoneNumber string
}

// DemoProfile selects one of the enumerated demo scenarios.
type DemoProfile struct {
	PhoneNumber string `json:"phoneNumber"`
	Description string `json:"description"`
}

var demoProfiles = []DemoProfile{
	{PhoneNumber: "1111111111", Description: "No assets connected"},
	{PhoneNumber: "2222222222", Description: "All assets connected (large mutual fund portfolio)"},
	{PhoneNumber: "3333333333", Description: "All assets connected (small mutual fund portfolio)"},
	{PhoneNumber: "4444444444", Description: "All assets, multiple banks and UAN"},
	{PhoneNumber: "5555555555", Description: "All assets except credit score"},
	{PhoneNumber: "6666666666", Description: "All assets except bank account"},
	{PhoneNumber: "7777777777", Description: "Debt-heavy low performer"},
	{PhoneNumber: "8888888888", Description: "SIP samurai"},
	{PhoneNumber: "9999999999", Description: "Fixed income fanatic"},
	{PhoneNumber: "1010101010", Description: "Precious metal believer"},
}

// DemoProfiles returns a copy of the demo catalogue.
func DemoProfiles() []DemoProfile {
	out := make([]DemoProfile, len(demoProfiles))
	copy(out, demoProfiles)
	return out
}

// LookupDemoProfile finds a demo profile by phone number.
func LookupDemoProfile(phone string) (DemoProfile, bool) {
	for _, p := range demoProfiles {
		if p.PhoneNumber == phone {
			return p, true
		}
	}
	return DemoProfile{}, false
}
