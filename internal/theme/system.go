package theme

import (
	"context"
	"net/http"
	"strings"
)

// Preference is the operating-system level display preference.
type Preference struct {
	Dark          bool
	ReducedMotion bool
}

// Mode returns the theme implied by the preference.
func (p Preference) Mode() Mode {
	if p.Dark {
		return ModeDark
	}
	return ModeLight
}

// SystemPreference reports the system preference and optionally pushes changes.
type SystemPreference interface {
	Current(ctx context.Context) (Preference, error)
	Subscribe(fn func(Preference)) (cancel func())
}

// StaticPreference is a fixed preference that never changes.
type StaticPreference Preference

func (p StaticPreference) Current(context.Context) (Preference, error) {
	return Preference(p), nil
}

func (StaticPreference) Subscribe(func(Preference)) func() { return func() {} }

// Client hint headers sent by browsers that support them.
const (
	HeaderPrefersColorScheme   = "Sec-CH-Prefers-Color-Scheme"
	HeaderPrefersReducedMotion = "Sec-CH-Prefers-Reduced-Motion"
)

// PreferenceFromRequest reads the client hint headers. Missing hints mean
// light and no motion reduction.
func PreferenceFromRequest(r *http.Request) StaticPreference {
	if r == nil {
		return StaticPreference{}
	}
	scheme := strings.Trim(strings.ToLower(r.Header.Get(HeaderPrefersColorScheme)), `" `)
	motion := strings.Trim(strings.ToLower(r.Header.Get(HeaderPrefersReducedMotion)), `" `)
	return StaticPreference{
		Dark:          scheme == "dark",
		ReducedMotion: motion == "reduce",
	}
}
