package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/example/eventflow/internal/access"
	"github.com/example/eventflow/internal/theme"
)

func strPtr(v string) *string { return &v }

func TestPreferenceService_RepositoryStore(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	svc := NewPreferenceService(RepositoryStores(store, fixedClock(testNow)))
	ctx := context.Background()
	user := principalFor("u1", access.RoleAttendee)
	dark := theme.StaticPreference{Dark: true, ReducedMotion: true}
	light := theme.StaticPreference{}

	settings, err := svc.Theme(ctx, user, dark)
	if err != nil {
		t.Fatalf("Theme failed: %v", err)
	}
	if settings.Theme != theme.ModeDark || !settings.ReducedMotion || settings.AccentColor != theme.DefaultAccentColor {
		t.Fatalf("expected unsaved settings to follow the system, got %#v", settings)
	}

	settings, err = svc.ChangeTheme(ctx, user, light, ThemeChange{
		Theme:              strPtr("Dark"),
		AccentColor:        strPtr("#ff0000"),
		ToggleHighContrast: true,
	})
	if err != nil {
		t.Fatalf("ChangeTheme failed: %v", err)
	}
	if settings.Theme != theme.ModeDark || settings.AccentColor != "#ff0000" || !settings.IsHighContrast {
		t.Fatalf("unexpected settings %#v", settings)
	}

	pref, ok := store.prefs["u1/"+theme.StorageKey]
	if !ok {
		t.Fatalf("expected settings to be stored under %s", theme.StorageKey)
	}
	var saved theme.Settings
	if err := json.Unmarshal(pref.Value, &saved); err != nil {
		t.Fatalf("stored value is not JSON: %v", err)
	}
	if saved != settings || !pref.UpdatedAt.Equal(testNow) {
		t.Fatalf("stored %#v, want %#v", saved, settings)
	}

	settings, err = svc.Theme(ctx, user, light)
	if err != nil {
		t.Fatalf("Theme failed: %v", err)
	}
	if settings.Theme != theme.ModeDark || !settings.IsHighContrast {
		t.Fatalf("expected an explicit choice to win over the system, got %#v", settings)
	}

	if other, err := svc.Theme(ctx, principalFor("u2", access.RoleAttendee), light); err != nil || other.IsHighContrast {
		t.Fatalf("expected settings to be per user, got %#v (%v)", other, err)
	}

	settings, err = svc.ResetTheme(ctx, user, light)
	if err != nil {
		t.Fatalf("ResetTheme failed: %v", err)
	}
	if settings != theme.Defaults() {
		t.Fatalf("expected defaults, got %#v", settings)
	}
	if _, ok := store.prefs["u1/"+theme.StorageKey]; ok {
		t.Fatalf("expected the stored record to be removed")
	}
}

func TestPreferenceService_SystemTracking(t *testing.T) {
	t.Parallel()

	svc := NewPreferenceService(RepositoryStores(newMemoryStore(), fixedClock(testNow)))
	ctx := context.Background()
	user := principalFor("u1", access.RoleAttendee)

	settings, err := svc.ChangeTheme(ctx, user, theme.StaticPreference{Dark: true}, ThemeChange{ToggleSystemTheme: true})
	if err != nil {
		t.Fatalf("ChangeTheme failed: %v", err)
	}
	if !settings.UseSystemTheme || settings.Theme != theme.ModeDark {
		t.Fatalf("expected the system theme to be adopted, got %#v", settings)
	}

	settings, err = svc.Theme(ctx, user, theme.StaticPreference{})
	if err != nil {
		t.Fatalf("Theme failed: %v", err)
	}
	if settings.Theme != theme.ModeLight {
		t.Fatalf("expected a tracking user to follow the current system theme, got %#v", settings)
	}
}

func TestPreferenceService_Validation(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	svc := NewPreferenceService(RepositoryStores(store, fixedClock(testNow)))
	ctx := context.Background()

	_, err := svc.ChangeTheme(ctx, principalFor("u1", access.RoleAttendee), theme.StaticPreference{}, ThemeChange{
		Theme:       strPtr("blue"),
		AccentColor: strPtr("red"),
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"theme", "accent_color"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Errorf("expected %s error, got %#v", field, vErr.FieldErrors)
		}
	}
	if len(store.prefs) != 0 {
		t.Fatalf("expected nothing to be stored")
	}

	if _, err := svc.Theme(ctx, Principal{}, theme.StaticPreference{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestPreferenceService_UnreadableStoreFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	store := newMemoryStore().failing("GetPreference", errors.New("disk I/O error"))
	svc := NewPreferenceService(RepositoryStores(store, fixedClock(testNow)))

	settings, err := svc.Theme(context.Background(), principalFor("u1", access.RoleAttendee), theme.StaticPreference{})
	if err != nil {
		t.Fatalf("Theme failed: %v", err)
	}
	if settings != theme.Defaults() {
		t.Fatalf("expected defaults, got %#v", settings)
	}
}

func TestPreferenceService_FileStores(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()
	user := principalFor("u1", access.RoleAttendee)

	if _, err := NewPreferenceService(FileStores(dir)).ChangeTheme(ctx, user, theme.StaticPreference{}, ThemeChange{AccentColor: strPtr("#0f0")}); err != nil {
		t.Fatalf("ChangeTheme failed: %v", err)
	}

	settings, err := NewPreferenceService(FileStores(dir)).Theme(ctx, user, theme.StaticPreference{})
	if err != nil {
		t.Fatalf("Theme failed: %v", err)
	}
	if settings.AccentColor != "#0f0" {
		t.Fatalf("expected the file store to keep the accent colour, got %#v", settings)
	}
}
