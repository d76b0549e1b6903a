package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/eventflow/internal/persistence"
	"github.com/example/eventflow/internal/theme"
)

// StoreFactory returns the theme store for one owner.
type StoreFactory func(ownerID string) (theme.Store, error)

// RepositoryStores keeps theme settings as preference rows.
func RepositoryStores(prefs persistence.PreferenceRepository, now func() time.Time) StoreFactory {
	if now == nil {
		now = time.Now
	}
	return func(ownerID string) (theme.Store, error) {
		if prefs == nil {
			return nil, fmt.Errorf("preference repository not configured")
		}
		return &userPreferenceStore{prefs: prefs, ownerID: ownerID, now: now}, nil
	}
}

// FileStores keeps theme settings as one JSON file per owner under dir.
func FileStores(dir string) StoreFactory {
	return func(ownerID string) (theme.Store, error) {
		return theme.NewFileStore(dir, ownerID)
	}
}

type userPreferenceStore struct {
	prefs   persistence.PreferenceRepository
	ownerID string
	now     func() time.Time
}

func (s *userPreferenceStore) Load(ctx context.Context) ([]byte, error) {
	pref, err := s.prefs.GetPreference(ctx, s.ownerID, theme.StorageKey)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, theme.ErrNotStored
	}
	if err != nil {
		return nil, err
	}
	return pref.Value, nil
}

func (s *userPreferenceStore) Save(ctx context.Context, data []byte) error {
	return s.prefs.PutPreference(ctx, persistence.Preference{
		OwnerID:   s.ownerID,
		Key:       theme.StorageKey,
		Value:     data,
		UpdatedAt: s.now(),
	})
}

func (s *userPreferenceStore) Delete(ctx context.Context) error {
	err := s.prefs.DeletePreference(ctx, s.ownerID, theme.StorageKey)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil
	}
	return err
}

// ThemeChange is a partial update of the theme settings. Toggles flip the
// current value when true.
type ThemeChange struct {
	Theme               *string `json:"theme"`
	AccentColor         *string `json:"accent_color"`
	ToggleSystemTheme   bool    `json:"toggle_system_theme"`
	ToggleHighContrast  bool    `json:"toggle_high_contrast"`
	ToggleReducedMotion bool    `json:"toggle_reduced_motion"`
}

// PreferenceService reads and changes the signed-in user's theme settings.
// Each call runs a short-lived theme manager against the user's store.
type PreferenceService struct {
	stores StoreFactory
	logger *slog.Logger
}

// NewPreferenceService wires dependencies for the preference service.
func NewPreferenceService(stores StoreFactory) *PreferenceService {
	return NewPreferenceServiceWithLogger(stores, nil)
}

// NewPreferenceServiceWithLogger wires dependencies with a specific logger.
func NewPreferenceServiceWithLogger(stores StoreFactory, logger *slog.Logger) *PreferenceService {
	return &PreferenceService{stores: stores, logger: defaultLogger(logger)}
}

func (s *PreferenceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PreferenceService", operation, attrs...)
}

// Theme returns the effective settings given the client's system preference.
func (s *PreferenceService) Theme(ctx context.Context, principal Principal, system theme.SystemPreference) (theme.Settings, error) {
	var settings theme.Settings
	err := s.withManager(ctx, principal, system, func(m *theme.Manager) error {
		settings = m.Settings()
		return nil
	})
	return settings, err
}

// ChangeTheme applies change in field order: theme, accent colour, then the
// toggles. Invalid values are reported together and nothing is changed.
func (s *PreferenceService) ChangeTheme(ctx context.Context, principal Principal, system theme.SystemPreference, change ThemeChange) (settings theme.Settings, err error) {
	if s == nil {
		err = fmt.Errorf("PreferenceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ChangeTheme", "principal_id", principal.UserID)
	defer func() {
		logOutcome(ctx, logger, err, "theme change failed", "theme changed")
	}()

	vErr := &ValidationError{}
	var mode theme.Mode
	if change.Theme != nil {
		if mode, err = theme.ParseMode(*change.Theme); err != nil {
			vErr.add("theme", "must be light or dark")
			err = nil
		}
	}
	if change.AccentColor != nil && !theme.ValidAccentColor(*change.AccentColor) {
		vErr.add("accent_color", "must be a #rgb or #rrggbb colour")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	err = s.withManager(ctx, principal, system, func(m *theme.Manager) error {
		if change.Theme != nil {
			if _, err := m.ChangeTheme(ctx, mode); err != nil {
				return err
			}
		}
		if change.AccentColor != nil {
			if _, err := m.ChangeAccentColor(ctx, *change.AccentColor); err != nil {
				return err
			}
		}
		if change.ToggleSystemTheme {
			m.ToggleSystemTheme(ctx)
		}
		if change.ToggleHighContrast {
			m.ToggleHighContrast(ctx)
		}
		if change.ToggleReducedMotion {
			m.ToggleReducedMotion(ctx)
		}
		settings = m.Settings()
		return nil
	})
	return
}

// ResetTheme restores the defaults and removes the stored settings.
func (s *PreferenceService) ResetTheme(ctx context.Context, principal Principal, system theme.SystemPreference) (settings theme.Settings, err error) {
	if s == nil {
		err = fmt.Errorf("PreferenceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ResetTheme", "principal_id", principal.UserID)
	defer func() {
		logOutcome(ctx, logger, err, "theme reset failed", "theme reset")
	}()

	err = s.withManager(ctx, principal, system, func(m *theme.Manager) error {
		settings = m.ResetToDefaults(ctx)
		return nil
	})
	return
}

func (s *PreferenceService) withManager(ctx context.Context, principal Principal, system theme.SystemPreference, fn func(*theme.Manager) error) error {
	if s == nil {
		return fmt.Errorf("PreferenceService is nil")
	}
	if principal.UserID == "" {
		return ErrUnauthorized
	}
	if s.stores == nil {
		return fmt.Errorf("preference store not configured")
	}
	store, err := s.stores(principal.UserID)
	if err != nil {
		return fmt.Errorf("open preference store: %w", err)
	}

	m := theme.NewManager(store, system, s.logger)
	defer m.Dispose()
	m.Init(ctx)
	return fn(m)
}
