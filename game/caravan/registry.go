package caravan

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/mysterria/silkroad/audit"
	"github.com/mysterria/silkroad/cache"
	"github.com/mysterria/silkroad/config"
	"github.com/mysterria/silkroad/game/item"
	"go.uber.org/zap"
)

// Config holds the registry settings derived from the process config.
type Config struct {
	Cost         CostModel
	Catalog      *item.Catalog
	ClaimLockTTL time.Duration
	Debug        bool
}

// ConfigFrom builds the registry config from the transfer section.
func ConfigFrom(tc config.TransferConfig, catalog *item.Catalog) Config {
	return Config{
		Cost:         CostModelFromConfig(tc),
		Catalog:      catalog,
		ClaimLockTTL: tc.ClaimLockTTL,
		Debug:        tc.Debug,
	}
}

// Option customizes a Registry.
type Option func(*Registry)

// WithTownValidator enables territory validation and group rosters. Without
// one, territory is accepted as given.
func WithTownValidator(v TownValidator) Option {
	return func(r *Registry) { r.towns = v }
}

// WithAuditor records lifecycle events.
func WithAuditor(a Auditor) Option {
	return func(r *Registry) { r.auditor = a }
}

// WithHooks fires lifecycle events at h.
func WithHooks(h Hooks) Option {
	return func(r *Registry) { r.hooks = h }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry owns every loaded caravan and every active transfer. All public
// methods serialize on one mutex and hand out deep copies.
type Registry struct {
	mu        sync.Mutex
	cfg       Config
	store     Store
	currency  CurrencySource
	notifier  Notifier
	towns     TownValidator
	auditor   Auditor
	hooks     Hooks
	cache     cache.Cache
	logger    *zap.Logger
	now       func() time.Time
	caravans  map[string]*Caravan
	transfers map[string]*Transfer // IN_TRANSIT and DELIVERED
}

// NewRegistry creates an empty registry. Call Load to read persisted state.
func NewRegistry(cfg Config, store Store, currency CurrencySource, notifier Notifier,
	c cache.Cache, logger *zap.Logger, opts ...Option) *Registry {
	if cfg.ClaimLockTTL <= 0 {
		cfg.ClaimLockTTL = 30 * time.Second
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	r := &Registry{
		cfg:       cfg,
		store:     store,
		currency:  currency,
		notifier:  notifier,
		auditor:   nopAuditor{},
		hooks:     nopHooks{},
		cache:     c,
		logger:    logger,
		now:       time.Now,
		caravans:  make(map[string]*Caravan),
		transfers: make(map[string]*Transfer),
	}
	for _, o := range opts {
		o(r)
	}
	if r.auditor == nil {
		r.auditor = nopAuditor{}
	}
	if r.hooks == nil {
		r.hooks = nopHooks{}
	}
	return r
}

// clock returns the current time at millisecond precision, the precision
// records are stored with.
func (r *Registry) clock() time.Time {
	return time.UnixMilli(r.now().UnixMilli())
}

// Load reads every active caravan and every pending, in-transit or delivered
// transfer from the store. Records that fail to decode are logged and
// skipped.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.store.CaravanIDs(ctx)
	if err != nil {
		return fmt.Errorf("%w: listing caravans: %v", ErrPersistence, err)
	}
	for _, id := range ids {
		c, err := r.store.LoadCaravan(ctx, id)
		if err != nil {
			r.logger.Error("skipping unreadable caravan", zap.String("caravan", id), zap.Error(err))
			continue
		}
		if !c.Active {
			continue
		}
		r.caravans[c.ID] = c
	}

	tids, err := r.store.TransferIDs(ctx)
	if err != nil {
		return fmt.Errorf("%w: listing transfers: %v", ErrPersistence, err)
	}
	for _, id := range tids {
		t, err := r.store.LoadTransfer(ctx, id)
		if err != nil {
			r.logger.Error("skipping unreadable transfer", zap.String("transfer", id), zap.Error(err))
			continue
		}
		switch t.Status {
		case StatusPending:
			// Goods and fee were taken before the record was written.
			_ = t.transition(StatusInTransit)
			_ = r.persistTransfer(ctx, t)
			fallthrough
		case StatusInTransit, StatusDelivered:
			r.transfers[t.ID] = t
		}
	}

	r.logger.Info("caravan registry loaded",
		zap.Int("caravans", len(r.caravans)),
		zap.Int("transfers", len(r.transfers)))
	return nil
}

// Close writes every loaded caravan and active transfer back to the store.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, c := range r.caravans {
		if err := r.store.SaveCaravan(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("caravan %s: %w", c.ID, err))
		}
	}
	for _, t := range r.transfers {
		if err := r.store.SaveTransfer(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("transfer %s: %w", t.ID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	r.logger.Info("caravan registry flushed",
		zap.Int("caravans", len(r.caravans)),
		zap.Int("transfers", len(r.transfers)))
	return nil
}

// lookup returns the live caravan, loading an active record on a cache miss.
// Callers hold r.mu.
func (r *Registry) lookup(ctx context.Context, id string) (*Caravan, error) {
	if c, ok := r.caravans[id]; ok {
		return c, nil
	}
	c, err := r.store.LoadCaravan(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: caravan %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading caravan %s: %v", ErrPersistence, id, err)
	}
	if !c.Active {
		return nil, fmt.Errorf("%w: caravan %s", ErrNotFound, id)
	}
	r.caravans[id] = c
	r.logger.Info("caravan loaded from storage", zap.String("caravan", id))
	return c, nil
}

// persistCaravan writes c and logs a failure. The in-memory state stays
// authoritative; Close retries the write.
func (r *Registry) persistCaravan(ctx context.Context, c *Caravan) error {
	if err := r.store.SaveCaravan(ctx, c); err != nil {
		r.logger.Error("caravan save failed", zap.String("caravan", c.ID), zap.Error(err))
		return fmt.Errorf("%w: saving caravan %s: %v", ErrPersistence, c.ID, err)
	}
	return nil
}

func (r *Registry) persistTransfer(ctx context.Context, t *Transfer) error {
	if err := r.store.SaveTransfer(ctx, t); err != nil {
		r.logger.Error("transfer save failed", zap.String("transfer", t.ID), zap.Error(err))
		return fmt.Errorf("%w: saving transfer %s: %v", ErrPersistence, t.ID, err)
	}
	return nil
}

func (r *Registry) debug(msg string, fields ...zap.Field) {
	if r.cfg.Debug {
		r.logger.Debug(msg, fields...)
	}
}

func (r *Registry) audit(e audit.Entry) { r.auditor.Log(e) }

// sortedCaravans returns the loaded caravans ordered by id. Callers hold r.mu.
func (r *Registry) sortedCaravans() []*Caravan {
	return slices.SortedFunc(maps.Values(r.caravans), func(a, b *Caravan) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

func cloneCaravans(in []*Caravan) []*Caravan {
	out := make([]*Caravan, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
