package curve

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrCurveNotFound is returned by stores when no curve is persisted for the
// requested pump type.
var ErrCurveNotFound = errors.New("curve: not found")

// Store persists curves keyed by pump type. Implementations: the YAML file
// store in this package and the Postgres store in internal/storage.
type Store interface {
	LoadCurve(ctx context.Context, pumpType string) (Curve, error)
	SaveCurve(ctx context.Context, c Curve) error
}

// Repository owns the active curve. Reads are lock-free snapshots; Replace
// swaps the active reference atomically so a calculation that captured the
// curve at cycle start is never affected by a mid-cycle replace.
type Repository struct {
	active atomic.Pointer[Curve]
	store  Store // nil means in-memory only
	logger zerolog.Logger
}

// NewRepository builds a repository seeded with the built-in default curve.
// store may be nil.
func NewRepository(store Store, logger zerolog.Logger) *Repository {
	r := &Repository{
		store:  store,
		logger: logger.With().Str("component", "curve_repository").Logger(),
	}
	def := Default()
	r.active.Store(&def)
	return r
}

// Load installs the stored curve for pumpType as the active curve. It never
// fails: a missing or unreadable stored curve falls back to the built-in
// default and logs the reason.
func (r *Repository) Load(ctx context.Context, pumpType string) Curve {
	if r.store != nil {
		c, err := r.store.LoadCurve(ctx, pumpType)
		if err == nil {
			r.active.Store(&c)
			r.logger.Info().Str("pump_type", pumpType).Int("points", len(c.Points)).Msg("curve loaded")
			return c
		}
		if !errors.Is(err, ErrCurveNotFound) {
			r.logger.Warn().Err(err).Str("pump_type", pumpType).Msg("curve load failed, using default")
		} else {
			r.logger.Info().Str("pump_type", pumpType).Msg("no stored curve, using default")
		}
	}

	def := Default()
	def.PumpType = pumpType
	r.active.Store(&def)
	return def
}

// Replace validates points, installs the resulting curve atomically, and
// persists it when a store is configured. On validation failure the prior
// curve remains active.
func (r *Repository) Replace(ctx context.Context, pumpType string, points []Point) (Curve, error) {
	c, err := New(pumpType, points)
	if err != nil {
		return Curve{}, err
	}

	if r.store != nil {
		if err := r.store.SaveCurve(ctx, c); err != nil {
			return Curve{}, err
		}
	}

	r.active.Store(&c)
	r.logger.Info().Str("pump_type", pumpType).Int("points", len(c.Points)).Msg("curve replaced")
	return c, nil
}

// Active returns a snapshot of the currently installed curve.
func (r *Repository) Active() Curve {
	return *r.active.Load()
}
