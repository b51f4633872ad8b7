// Package registry stores immutable, content-hashed model bundles together
// with their model cards and tracks which version is active.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/fractal-lba/scorelens/internal/bundle"
	"github.com/fractal-lba/scorelens/internal/cache"
	"github.com/fractal-lba/scorelens/internal/training"
)

var (
	// ErrUnknownVersion is returned for versions that were never registered.
	ErrUnknownVersion = errors.New("registry: unknown bundle version")

	// ErrNoActive is returned when no version has been activated.
	ErrNoActive = errors.New("registry: no active bundle")

	// ErrIntegrity is returned when a stored bundle no longer matches its hash.
	ErrIntegrity = errors.New("registry: bundle hash mismatch")

	// ErrDuplicateVersion is returned when registering an existing version.
	ErrDuplicateVersion = errors.New("registry: version already registered")
)

const (
	bundlePrefix = "bundles/"
	hashSuffix   = ".sha256"
	cardPrefix   = "cards/"
	activeKey    = "active"
	previousKey  = "previous"
)

// DefaultCacheSize bounds how many decoded bundles stay in memory.
const DefaultCacheSize = 4

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCacheSize sets the decoded bundle cache size.
func WithCacheSize(n int) Option {
	return func(r *Registry) { r.cacheSize = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry manages versioned bundles on top of a Store.
type Registry struct {
	store     Store
	logger    *slog.Logger
	now       func() time.Time
	cacheSize int
	bundles   *cache.LRU[string, *bundle.Bundle]
}

// New creates a registry backed by store.
func New(store Store, opts ...Option) (*Registry, error) {
	r := &Registry{
		store:     store,
		logger:    slog.Default(),
		now:       time.Now,
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	c, err := cache.New[string, *bundle.Bundle](r.cacheSize, 0)
	if err != nil {
		return nil, fmt.Errorf("registry cache: %w", err)
	}
	r.bundles = c
	return r, nil
}

// Close closes the underlying store.
func (r *Registry) Close() error {
	return r.store.Close()
}

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Register persists a trained bundle and its model card. Bundles are
// write-once: registering the same version twice fails.
func (r *Registry) Register(ctx context.Context, res *training.Result) (*ModelCard, error) {
	if res == nil || res.Bundle == nil {
		return nil, bundle.ErrIncomplete
	}
	b := res.Bundle
	version := b.Version()

	data, err := bundle.Encode(b)
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	hash := hashOf(data)

	if err := r.store.Create(ctx, bundlePrefix+version, data); err != nil {
		if errors.Is(err, ErrExists) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateVersion, version)
		}
		return nil, fmt.Errorf("store bundle: %w", err)
	}

	card := newCard(b, res.Importance, hash, r.now().UTC())
	cardData, err := json.MarshalIndent(card, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode model card: %w", err)
	}
	if err := r.store.Create(ctx, cardPrefix+version, cardData); err != nil {
		return nil, fmt.Errorf("store model card: %w", err)
	}
	// The hash key commits the version; Versions ignores blobs without one.
	if err := r.store.Create(ctx, bundlePrefix+version+hashSuffix, []byte(hash)); err != nil {
		return nil, fmt.Errorf("store bundle hash: %w", err)
	}

	r.bundles.Set(version, b)
	r.logger.Info("registered bundle", "version", version, "binary_hash", hash[:8])
	return card, nil
}

// Activate marks version as the one to serve.
func (r *Registry) Activate(ctx context.Context, version string) error {
	if _, err := r.storedHash(ctx, version); err != nil {
		return err
	}

	prev, err := r.ActiveVersion(ctx)
	if err != nil && !errors.Is(err, ErrNoActive) {
		return err
	}
	if prev == version {
		return nil
	}
	if prev != "" {
		if err := r.store.Put(ctx, previousKey, []byte(prev)); err != nil {
			return fmt.Errorf("record previous version: %w", err)
		}
	}
	if err := r.store.Put(ctx, activeKey, []byte(version)); err != nil {
		return fmt.Errorf("activate %s: %w", version, err)
	}

	r.logger.Info("activated bundle", "version", version, "previous", prev)
	return nil
}

// Rollback re-activates the previously active version.
func (r *Registry) Rollback(ctx context.Context) (string, error) {
	prev, err := r.store.Get(ctx, previousKey)
	if errors.Is(err, ErrNotFound) {
		return "", ErrNoActive
	}
	if err != nil {
		return "", err
	}
	version := string(prev)
	if err := r.Activate(ctx, version); err != nil {
		return "", err
	}
	return version, nil
}

// ActiveVersion returns the active version or ErrNoActive.
func (r *Registry) ActiveVersion(ctx context.Context) (string, error) {
	data, err := r.store.Get(ctx, activeKey)
	if errors.Is(err, ErrNotFound) {
		return "", ErrNoActive
	}
	if err != nil {
		return "", fmt.Errorf("read active version: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// LoadActive loads the active bundle.
func (r *Registry) LoadActive(ctx context.Context) (*bundle.Bundle, error) {
	version, err := r.ActiveVersion(ctx)
	if err != nil {
		return nil, err
	}
	return r.Load(ctx, version)
}

// Load returns the bundle for version, verifying its hash on first load.
func (r *Registry) Load(ctx context.Context, version string) (*bundle.Bundle, error) {
	return r.bundles.GetOrLoad(ctx, version, r.decode)
}

func (r *Registry) decode(ctx context.Context, version string) (*bundle.Bundle, error) {
	data, err := r.verified(ctx, version)
	if err != nil {
		return nil, err
	}
	b, err := bundle.Decode(data, r.logger)
	if err != nil {
		return nil, fmt.Errorf("decode bundle %s: %w", version, err)
	}
	r.logger.Debug("decoded bundle", "version", version, "bytes", len(data))
	return b, nil
}

// VerifyIntegrity recomputes the stored bundle hash.
func (r *Registry) VerifyIntegrity(ctx context.Context, version string) error {
	_, err := r.verified(ctx, version)
	return err
}

func (r *Registry) verified(ctx context.Context, version string) ([]byte, error) {
	want, err := r.storedHash(ctx, version)
	if err != nil {
		return nil, err
	}
	data, err := r.store.Get(ctx, bundlePrefix+version)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}
	if err != nil {
		return nil, err
	}
	if got := hashOf(data); got != want {
		return nil, fmt.Errorf("%w: %s (want %s, got %s)", ErrIntegrity, version, want[:8], got[:8])
	}
	return data, nil
}

func (r *Registry) storedHash(ctx context.Context, version string) (string, error) {
	if version == "" {
		return "", ErrUnknownVersion
	}
	data, err := r.store.Get(ctx, bundlePrefix+version+hashSuffix)
	if errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Card returns the model card for version.
func (r *Registry) Card(ctx context.Context, version string) (*ModelCard, error) {
	data, err := r.store.Get(ctx, cardPrefix+version)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, version)
	}
	if err != nil {
		return nil, err
	}
	var card ModelCard
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("decode model card %s: %w", version, err)
	}
	return &card, nil
}

// Versions lists registered versions, oldest first. A bundle whose hash
// was never stored is an interrupted registration and is not listed.
func (r *Registry) Versions(ctx context.Context) ([]string, error) {
	keys, err := r.store.List(ctx, bundlePrefix)
	if err != nil {
		return nil, err
	}
	committed := make(map[string]bool, len(keys)/2)
	for _, k := range keys {
		if strings.HasSuffix(k, hashSuffix) {
			committed[strings.TrimSuffix(k, hashSuffix)] = true
		}
	}
	versions := make([]string, 0, len(committed))
	for _, k := range keys {
		if strings.HasSuffix(k, hashSuffix) || !committed[k] {
			continue
		}
		versions = append(versions, strings.TrimPrefix(k, bundlePrefix))
	}
	sort.Strings(versions)
	return versions, nil
}

// CacheStats reports decoded bundle cache effectiveness.
func (r *Registry) CacheStats() cache.Stats {
	return r.bundles.Stats()
}
