package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/abarbosa/fintalk/log"
	"github.com/abarbosa/fintalk/store"
)

// Limit caps how many assets a user can favorite, enforced before any
// write goes out.
const Limit = 3

var (
	ErrLimitReached = errors.New("favorite limit reached")
	ErrNotLoaded    = errors.New("favorites not loaded")
)

// Cache is the device-local key-value storage backing the fast path.
// Values are opaque strings; the synchronizer serializes to JSON.
type Cache interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Config binds a synchronizer to one asset class.
type Config struct {
	Collection string
	IDField    string
	CacheKey   string
}

// Stocks is the configuration for equity favorites.
func Stocks() Config {
	return Config{Collection: "stockFavorites", IDField: "stockId", CacheKey: "stockFavorites"}
}

// Coins is the configuration for currency-pair favorites.
func Coins() Config {
	return Config{Collection: "coinFavorites", IDField: "currencyId", CacheKey: "coinFavorites"}
}

// Synchronizer mirrors a capped set of favorite asset IDs between the
// local cache and the remote collection. The local copy is
// authoritative once present; remote writes are best effort and never
// roll the local state back.
type Synchronizer struct {
	store store.Store
	cache Cache
	cfg   Config
	owner string

	mu     sync.Mutex
	set    []string
	loaded bool

	remote    chan func(context.Context)
	done      chan struct{}
	closeOnce sync.Once
}

// NewSynchronizer creates a synchronizer for the owner (account email).
// Close must be called when the owning screen goes away.
func NewSynchronizer(s store.Store, cache Cache, cfg Config, owner string) *Synchronizer {
	syn := &Synchronizer{
		store:  s,
		cache:  cache,
		cfg:    cfg,
		owner:  owner,
		remote: make(chan func(context.Context), 16),
		done:   make(chan struct{}),
	}
	go syn.worker()
	return syn
}

// worker applies remote writes one at a time, in toggle order.
func (s *Synchronizer) worker() {
	defer close(s.done)
	for fn := range s.remote {
		fn(context.Background())
	}
}

// Close drains the pending remote writes and stops the worker. Safe to
// call more than once.
func (s *Synchronizer) Close() {
	s.closeOnce.Do(func() { close(s.remote) })
	<-s.done
}

// Load populates the set: the local cache wins when present, otherwise
// the newest Limit additions are read from the remote collection and
// the cache is seeded from them.
func (s *Synchronizer) Load(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, ok, err := s.cache.Get(s.cfg.CacheKey); err == nil && ok {
		var set []string
		if err := json.Unmarshal([]byte(raw), &set); err == nil {
			s.set = set
			s.loaded = true
			return append([]string(nil), set...), nil
		}
	}

	docs, err := s.store.GetAll(ctx, store.Query{
		Path:    s.cfg.Collection,
		Filters: []store.Filter{{Path: "user.id", Op: store.OpEqual, Value: s.owner}},
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   Limit,
	})
	if err != nil {
		return nil, err
	}

	set := make([]string, 0, len(docs))
	for _, doc := range docs {
		if id, ok := doc.Data[s.cfg.IDField].(string); ok {
			set = append(set, id)
		}
	}
	s.set = set
	s.loaded = true
	s.writeCacheLocked(ctx)
	return append([]string(nil), set...), nil
}

// Toggle flips membership of assetID. Adding beyond Limit fails with
// ErrLimitReached and leaves the set untouched. The cache is written
// synchronously; the matching remote write happens in the background
// and its failure is only logged.
func (s *Synchronizer) Toggle(ctx context.Context, assetID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, ErrNotLoaded
	}

	idx := -1
	for i, id := range s.set {
		if id == assetID {
			idx = i
			break
		}
	}

	if idx < 0 && len(s.set) >= Limit {
		return append([]string(nil), s.set...), ErrLimitReached
	}

	logger := log.LoggerFromContext(ctx)
	if idx >= 0 {
		s.set = append(s.set[:idx:idx], s.set[idx+1:]...)
		s.enqueue(func(bgCtx context.Context) {
			s.removeRemote(bgCtx, logger, assetID)
		})
	} else {
		s.set = append(s.set, assetID)
		s.enqueue(func(bgCtx context.Context) {
			s.addRemote(bgCtx, logger, assetID)
		})
	}

	s.writeCacheLocked(ctx)
	return append([]string(nil), s.set...), nil
}

// Set returns the current set without touching storage.
func (s *Synchronizer) Set() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.set...)
}

func (s *Synchronizer) enqueue(fn func(context.Context)) {
	select {
	case s.remote <- fn:
	default:
		// Queue full means the remote is badly behind; dropping keeps
		// the UI responsive and matches the best-effort contract.
	}
}

func (s *Synchronizer) writeCacheLocked(ctx context.Context) {
	raw, err := json.Marshal(s.set)
	if err == nil {
		err = s.cache.Set(s.cfg.CacheKey, string(raw))
	}
	if err != nil {
		log.LoggerFromContext(ctx).Error("writing favorites cache",
			slog.String("cacheKey", s.cfg.CacheKey),
			slog.String("errorMsg", err.Error()),
		)
	}
}

func (s *Synchronizer) addRemote(ctx context.Context, logger *slog.Logger, assetID string) {
	_, err := s.store.Add(ctx, s.cfg.Collection, map[string]any{
		"user":        map[string]any{"id": s.owner},
		s.cfg.IDField: assetID,
		"createdAt":   store.ServerTimestamp(),
	})
	if err != nil {
		logger.Error("adding remote favorite",
			slog.String("assetID", assetID),
			slog.String("errorMsg", err.Error()),
		)
	}
}

func (s *Synchronizer) removeRemote(ctx context.Context, logger *slog.Logger, assetID string) {
	docs, err := s.store.GetAll(ctx, store.Query{
		Path: s.cfg.Collection,
		Filters: []store.Filter{
			{Path: "user.id", Op: store.OpEqual, Value: s.owner},
			{Path: s.cfg.IDField, Op: store.OpEqual, Value: assetID},
		},
	})
	if err != nil {
		logger.Error("looking up remote favorite",
			slog.String("assetID", assetID),
			slog.String("errorMsg", err.Error()),
		)
		return
	}
	for _, doc := range docs {
		if err := s.store.Delete(ctx, s.cfg.Collection, doc.ID); err != nil {
			logger.Error("removing remote favorite",
				slog.String("assetID", assetID),
				slog.String("errorMsg", err.Error()),
			)
		}
	}
}
