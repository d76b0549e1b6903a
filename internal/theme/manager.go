package theme

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/eventflow/internal/logging"
)

// ErrInvalidSetting is returned by setters for values outside the allowed set.
var ErrInvalidSetting = errors.New("theme: invalid setting")

// Manager owns the settings of a single owner for the lifetime between Init
// and Dispose. Persistence failures are logged and never returned; the
// in-memory state stays authoritative.
type Manager struct {
	mu          sync.Mutex
	store       Store
	system      SystemPreference
	logger      *slog.Logger
	settings    Settings
	unsubscribe func()
	initialized bool
}

// NewManager constructs an uninitialized manager. A nil system source means
// light theme without motion reduction.
func NewManager(store Store, system SystemPreference, logger *slog.Logger) *Manager {
	if store == nil {
		store = &MemoryStore{}
	}
	if system == nil {
		system = StaticPreference{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, system: system, logger: logger, settings: Defaults()}
}

// Init loads the persisted settings and the system preference. Calling it
// again after a successful Init is a no-op.
func (m *Manager) Init(ctx context.Context) Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return m.settings
	}
	m.initialized = true

	logger := m.loggerFor(ctx, "init")

	pref, err := m.system.Current(ctx)
	if err != nil {
		logger.WarnContext(ctx, "system preference unavailable", "error", err)
		pref = Preference{}
	}

	var saved stored
	data, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotStored):
	case err != nil:
		logger.WarnContext(ctx, "failed to read theme settings; using defaults", "error", err)
	default:
		if saved, err = decode(data); err != nil {
			logger.WarnContext(ctx, "stored theme settings are corrupt; using defaults", "error", err)
			saved = stored{}
		}
	}

	s := Defaults()
	if saved.AccentColor != nil {
		s.AccentColor = *saved.AccentColor
	}
	if saved.IsHighContrast != nil {
		s.IsHighContrast = *saved.IsHighContrast
	}
	if saved.ReducedMotion != nil {
		s.ReducedMotion = *saved.ReducedMotion
	} else {
		s.ReducedMotion = pref.ReducedMotion
	}
	if saved.UseSystemTheme != nil {
		s.UseSystemTheme = *saved.UseSystemTheme
	}

	switch {
	case s.UseSystemTheme:
		s.Theme = pref.Mode()
	case saved.Theme != nil:
		s.Theme = *saved.Theme
	default:
		s.Theme = pref.Mode()
	}

	m.settings = s
	if s.UseSystemTheme {
		m.subscribeLocked()
	}
	logger.DebugContext(ctx, "theme settings initialized", "theme", s.Theme, "use_system_theme", s.UseSystemTheme)
	return m.settings
}

// Dispose cancels the system preference subscription, if any.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribeLocked()
}

// Settings returns the current in-memory settings.
func (m *Manager) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// Tracking reports whether the manager follows system preference changes.
func (m *Manager) Tracking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubscribe != nil
}

func (m *Manager) ChangeTheme(ctx context.Context, mode Mode) (Settings, error) {
	parsed, err := ParseMode(string(mode))
	if err != nil {
		return m.Settings(), fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	return m.mutate(ctx, "change_theme", func(s *Settings) { s.Theme = parsed }), nil
}

func (m *Manager) ChangeAccentColor(ctx context.Context, color string) (Settings, error) {
	if !ValidAccentColor(color) {
		return m.Settings(), fmt.Errorf("%w: accent colour %q", ErrInvalidSetting, color)
	}
	return m.mutate(ctx, "change_accent_color", func(s *Settings) { s.AccentColor = color }), nil
}

// ToggleSystemTheme flips system tracking. Turning it on adopts the current
// system theme and subscribes to changes; turning it off keeps the theme as is.
func (m *Manager) ToggleSystemTheme(ctx context.Context) Settings {
	var pref Preference
	var prefErr error
	if !m.Settings().UseSystemTheme {
		pref, prefErr = m.system.Current(ctx)
	}
	if prefErr != nil {
		m.loggerFor(ctx, "toggle_system_theme").WarnContext(ctx, "system preference unavailable", "error", prefErr)
	}

	return m.mutate(ctx, "toggle_system_theme", func(s *Settings) {
		s.UseSystemTheme = !s.UseSystemTheme
		if s.UseSystemTheme {
			if prefErr == nil {
				s.Theme = pref.Mode()
			}
			m.subscribeLocked()
		} else {
			m.unsubscribeLocked()
		}
	})
}

func (m *Manager) ToggleHighContrast(ctx context.Context) Settings {
	return m.mutate(ctx, "toggle_high_contrast", func(s *Settings) { s.IsHighContrast = !s.IsHighContrast })
}

func (m *Manager) ToggleReducedMotion(ctx context.Context) Settings {
	return m.mutate(ctx, "toggle_reduced_motion", func(s *Settings) { s.ReducedMotion = !s.ReducedMotion })
}

// ResetToDefaults restores the defaults and removes the stored record.
func (m *Manager) ResetToDefaults(ctx context.Context) Settings {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unsubscribeLocked()
	m.settings = Defaults()
	if err := m.store.Delete(ctx); err != nil {
		m.loggerFor(ctx, "reset").WarnContext(ctx, "failed to delete theme settings", "error", err)
	}
	return m.settings
}

func (m *Manager) mutate(ctx context.Context, op string, fn func(*Settings)) Settings {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn(&m.settings)
	m.persistLocked(ctx, op)
	return m.settings
}

func (m *Manager) persistLocked(ctx context.Context, op string) {
	data, err := encode(m.settings)
	if err == nil {
		err = m.store.Save(ctx, data)
	}
	if err != nil {
		m.loggerFor(ctx, op).WarnContext(ctx, "failed to persist theme settings", "error", err)
	}
}

func (m *Manager) subscribeLocked() {
	if m.unsubscribe != nil {
		return
	}
	m.unsubscribe = m.system.Subscribe(m.onSystemChange)
}

func (m *Manager) unsubscribeLocked() {
	if m.unsubscribe == nil {
		return
	}
	m.unsubscribe()
	m.unsubscribe = nil
}

func (m *Manager) onSystemChange(p Preference) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.settings.UseSystemTheme {
		return
	}
	m.settings.Theme = p.Mode()
}

func (m *Manager) loggerFor(ctx context.Context, op string) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = m.logger
	}
	return logger.With("component", "theme", "operation", op)
}
