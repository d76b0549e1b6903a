// Package theme holds per-user display preferences and the manager that
// loads, tracks and persists them.
package theme

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// StorageKey is the key the settings blob is stored under.
const StorageKey = "eventflow-theme-settings"

// DefaultAccentColor is used until the user picks another one.
const DefaultAccentColor = "#3b82f6"

// Mode is the explicit colour scheme.
type Mode string

const (
	ModeLight Mode = "light"
	ModeDark  Mode = "dark"
)

// ParseMode validates a theme name.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeLight:
		return ModeLight, nil
	case ModeDark:
		return ModeDark, nil
	}
	return "", fmt.Errorf("theme: unknown theme %q", value)
}

var accentPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ValidAccentColor reports whether value is a #rgb or #rrggbb colour.
func ValidAccentColor(value string) bool {
	return accentPattern.MatchString(value)
}

// Settings is the persisted object.
type Settings struct {
	Theme          Mode   `json:"theme"`
	AccentColor    string `json:"accentColor"`
	UseSystemTheme bool   `json:"useSystemTheme"`
	IsHighContrast bool   `json:"isHighContrast"`
	ReducedMotion  bool   `json:"reducedMotion"`
}

// Defaults returns light theme, the default accent and every toggle off.
func Defaults() Settings {
	return Settings{Theme: ModeLight, AccentColor: DefaultAccentColor}
}

// stored mirrors Settings with presence tracking so init can tell an
// explicit choice from an absent field.
type stored struct {
	Theme          *Mode   `json:"theme"`
	AccentColor    *string `json:"accentColor"`
	UseSystemTheme *bool   `json:"useSystemTheme"`
	IsHighContrast *bool   `json:"isHighContrast"`
	ReducedMotion  *bool   `json:"reducedMotion"`
}

func decode(data []byte) (stored, error) {
	var s stored
	if err := json.Unmarshal(data, &s); err != nil {
		return stored{}, fmt.Errorf("decode theme settings: %w", err)
	}
	if s.Theme != nil {
		mode, err := ParseMode(string(*s.Theme))
		if err != nil {
			s.Theme = nil
		} else {
			s.Theme = &mode
		}
	}
	if s.AccentColor != nil && !ValidAccentColor(*s.AccentColor) {
		s.AccentColor = nil
	}
	return s, nil
}

func encode(s Settings) ([]byte, error) {
	return json.Marshal(s)
}
