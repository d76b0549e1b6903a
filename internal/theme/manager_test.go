package theme

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seeded(t *testing.T, raw string) *MemoryStore {
	t.Helper()
	store := &MemoryStore{}
	if err := store.Save(context.Background(), []byte(raw)); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func TestInitPrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		stored   string
		system   Preference
		want     Mode
		tracking bool
	}{
		{name: "nothing stored follows system", system: Preference{Dark: true}, want: ModeDark},
		{name: "explicit theme beats system", stored: `{"theme":"light"}`, system: Preference{Dark: true}, want: ModeLight},
		{name: "system flag false keeps explicit theme", stored: `{"theme":"dark","useSystemTheme":false}`, want: ModeDark},
		{name: "flag without theme falls back to system", stored: `{"useSystemTheme":false}`, system: Preference{Dark: true}, want: ModeDark},
		{name: "system flag true tracks system", stored: `{"theme":"light","useSystemTheme":true}`, system: Preference{Dark: true}, want: ModeDark, tracking: true},
		{name: "corrupt blob uses defaults", stored: `{not json`, want: ModeLight},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := &MemoryStore{}
			if tc.stored != "" {
				store = seeded(t, tc.stored)
			}
			system := newPushedPreference(tc.system)
			m := NewManager(store, system, quietLogger())
			defer m.Dispose()

			got := m.Init(context.Background())
			if got.Theme != tc.want {
				t.Fatalf("expected theme %s, got %s", tc.want, got.Theme)
			}
			if m.Tracking() != tc.tracking {
				t.Fatalf("expected tracking=%v", tc.tracking)
			}
		})
	}
}

func TestInitFallsBackOnReadFailure(t *testing.T) {
	t.Parallel()

	m := NewManager(failingStore{}, StaticPreference{}, quietLogger())
	if got := m.Init(context.Background()); got != Defaults() {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestSettersPersistFullObject(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &MemoryStore{}
	m := NewManager(store, StaticPreference{}, quietLogger())
	m.Init(ctx)

	if _, err := m.ChangeAccentColor(ctx, "#ff0000"); err != nil {
		t.Fatalf("ChangeAccentColor: %v", err)
	}
	m.ToggleHighContrast(ctx)

	data, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("expected persisted settings: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"theme", "accentColor", "useSystemTheme", "isHighContrast", "reducedMotion"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("persisted object missing %s: %s", key, data)
		}
	}
	if got["accentColor"] != "#ff0000" || got["isHighContrast"] != true {
		t.Fatalf("unexpected persisted values: %s", data)
	}
}

func TestSetterValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewManager(nil, nil, quietLogger())
	m.Init(ctx)

	if _, err := m.ChangeTheme(ctx, "sepia"); !errors.Is(err, ErrInvalidSetting) {
		t.Fatalf("expected ErrInvalidSetting, got %v", err)
	}
	if _, err := m.ChangeAccentColor(ctx, "blue"); !errors.Is(err, ErrInvalidSetting) {
		t.Fatalf("expected ErrInvalidSetting, got %v", err)
	}
	if m.Settings() != Defaults() {
		t.Fatalf("invalid input must not change settings")
	}
}

func TestSystemTracking(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	system := newPushedPreference(Preference{})
	m := NewManager(&MemoryStore{}, system, quietLogger())
	m.Init(ctx)

	if s := m.ToggleSystemTheme(ctx); !s.UseSystemTheme {
		t.Fatalf("expected system theme on")
	}
	if system.Subscribers() != 1 {
		t.Fatalf("expected a subscription, got %d", system.Subscribers())
	}

	system.Set(Preference{Dark: true})
	if got := m.Settings().Theme; got != ModeDark {
		t.Fatalf("expected theme to follow system, got %s", got)
	}

	m.ToggleSystemTheme(ctx)
	if system.Subscribers() != 0 {
		t.Fatalf("toggling off must cancel the subscription")
	}
	system.Set(Preference{Dark: false})
	if got := m.Settings().Theme; got != ModeDark {
		t.Fatalf("theme must stop following system, got %s", got)
	}
}

func TestDisposeCancelsSubscription(t *testing.T) {
	t.Parallel()

	system := newPushedPreference(Preference{})
	m := NewManager(seeded(t, `{"useSystemTheme":true}`), system, quietLogger())
	m.Init(context.Background())
	if system.Subscribers() != 1 {
		t.Fatalf("expected subscription after init")
	}
	m.Dispose()
	m.Dispose()
	if system.Subscribers() != 0 {
		t.Fatalf("expected no subscriptions after dispose")
	}
}

func TestResetDeletesStoredRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := seeded(t, `{"theme":"dark","accentColor":"#000000","isHighContrast":true}`)
	m := NewManager(store, StaticPreference{}, quietLogger())
	m.Init(ctx)

	if got := m.ResetToDefaults(ctx); got != Defaults() {
		t.Fatalf("expected defaults, got %+v", got)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrNotStored) {
		t.Fatalf("expected stored record removed, got %v", err)
	}
}

func TestWriteFailureKeepsMemoryState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewManager(failingStore{}, StaticPreference{}, quietLogger())
	m.Init(ctx)

	if s := m.ToggleReducedMotion(ctx); !s.ReducedMotion {
		t.Fatalf("expected in-memory change despite write failure")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), "user-1")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrNotStored) {
		t.Fatalf("expected ErrNotStored, got %v", err)
	}
	if err := store.Save(ctx, []byte(`{"theme":"dark"}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(store.Path()); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}

	if _, err := NewFileStore(t.TempDir(), "../escape"); err == nil {
		t.Fatalf("expected error for path traversal owner")
	}
}

func TestPreferenceFromRequest(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderPrefersColorScheme, `"dark"`)
	req.Header.Set(HeaderPrefersReducedMotion, "reduce")

	p := PreferenceFromRequest(req)
	if !p.Dark || !p.ReducedMotion {
		t.Fatalf("unexpected preference %+v", p)
	}
	if p := PreferenceFromRequest(httptest.NewRequest("GET", "/", nil)); p.Dark || p.ReducedMotion {
		t.Fatalf("expected light default, got %+v", p)
	}
}

type failingStore struct{}

func (failingStore) Load(context.Context) ([]byte, error) { return nil, errors.New("disk on fire") }
func (failingStore) Save(context.Context, []byte) error   { return errors.New("disk on fire") }
func (failingStore) Delete(context.Context) error         { return errors.New("disk on fire") }
