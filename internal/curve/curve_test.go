package curve

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewSortsAndValidates(t *testing.T) {
	c, err := New("p1", []Point{
		{Flow: 200, RequiredHead: 5.5},
		{Flow: 0, RequiredHead: 0.5},
		{Flow: 100, RequiredHead: 2.0},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 1; i < len(c.Points); i++ {
		if c.Points[i-1].Flow >= c.Points[i].Flow {
			t.Fatalf("points not sorted ascending: %+v", c.Points)
		}
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		points []Point
	}{
		{"empty", nil},
		{"negative flow", []Point{{Flow: -1, RequiredHead: 1}}},
		{"negative head", []Point{{Flow: 1, RequiredHead: -0.1}}},
		{"duplicate flow", []Point{{Flow: 5, RequiredHead: 1}, {Flow: 5, RequiredHead: 2}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New("p", tc.points)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestRepositoryReplaceKeepsPriorOnFailure(t *testing.T) {
	repo := NewRepository(nil, zerolog.Nop())
	before := repo.Active()

	if _, err := repo.Replace(context.Background(), "p", []Point{{Flow: -1, RequiredHead: 1}}); err == nil {
		t.Fatal("expected validation error")
	}

	after := repo.Active()
	if len(after.Points) != len(before.Points) {
		t.Fatalf("active curve changed after failed replace")
	}
}

func TestRepositoryLoadFallsBackToDefault(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	repo := NewRepository(store, zerolog.Nop())

	c := repo.Load(context.Background(), "unknown-pump")
	if c.PumpType != "unknown-pump" {
		t.Fatalf("pump type not carried through fallback: %q", c.PumpType)
	}
	if len(c.Points) != len(Default().Points) {
		t.Fatalf("expected default curve, got %d points", len(c.Points))
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	want, err := New("8x15DMX-3", []Point{
		{Flow: 0, RequiredHead: 0.5},
		{Flow: 480, RequiredHead: 16.4},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := store.SaveCurve(ctx, want); err != nil {
		t.Fatalf("SaveCurve: %v", err)
	}

	got, err := store.LoadCurve(ctx, "8x15DMX-3")
	if err != nil {
		t.Fatalf("LoadCurve: %v", err)
	}
	if len(got.Points) != 2 || got.Points[1].RequiredHead != 16.4 {
		t.Fatalf("round trip mismatch: %+v", got.Points)
	}

	if _, err := filepath.Glob(filepath.Join(dir, "*.yaml")); err != nil {
		t.Fatalf("glob: %v", err)
	}
}

func TestFileStoreMissingCurve(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.LoadCurve(context.Background(), "nope"); !errors.Is(err, ErrCurveNotFound) {
		t.Fatalf("expected ErrCurveNotFound, got %v", err)
	}
}
