package devicerisk

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CountrySighting records where a user was last observed from.
type CountrySighting struct {
	Country string    `json:"country"`
	SeenAt  time.Time `json:"seen_at"`
}

// Cache is the fingerprint/location history consulted and updated by the
// scorer. Implementations return zero values for absent entries; the scorer
// treats both absent entries and errors as "no prior signal".
type Cache interface {
	// LastFingerprint returns the fingerprint last stored for the user, or
	// "" when none is known.
	LastFingerprint(ctx context.Context, userID string) (string, error)
	StoreFingerprint(ctx context.Context, userID, fingerprint string) error

	// LastCountry returns the user's most recent country sighting; the zero
	// value means no sighting is known.
	LastCountry(ctx context.Context, userID string) (CountrySighting, error)
	StoreCountry(ctx context.Context, userID string, sighting CountrySighting) error

	// DistinctFingerprints registers the fingerprint against the IP and
	// returns how many distinct fingerprints the IP has presented within the
	// churn window, including this one.
	DistinctFingerprints(ctx context.Context, ip, fingerprint string) (int, error)
}

// CachePolicy holds the TTL contract for cached risk signals.
type CachePolicy struct {
	FingerprintTTL time.Duration
	LocationTTL    time.Duration
	ChurnWindow    time.Duration
}

// DefaultCachePolicy returns the production TTLs.
func DefaultCachePolicy() CachePolicy {
	return CachePolicy{
		FingerprintTTL: 24 * time.Hour,
		LocationTTL:    24 * time.Hour,
		ChurnWindow:    time.Hour,
	}
}

const (
	fingerprintKeyPrefix = "devrisk:fp:"
	countryKeyPrefix     = "devrisk:geo:"
	churnKeyPrefix       = "devrisk:ipfp:"
)

// RedisCache backs the risk cache with Redis.
type RedisCache struct {
	client *redis.Client
	policy CachePolicy
}

// NewRedisCache creates a Redis-backed cache. A zero policy gets defaults.
func NewRedisCache(client *redis.Client, policy CachePolicy) *RedisCache {
	if policy.FingerprintTTL == 0 {
		policy = DefaultCachePolicy()
	}
	return &RedisCache{client: client, policy: policy}
}

func (c *RedisCache) LastFingerprint(ctx context.Context, userID string) (string, error) {
	val, err := c.client.Get(ctx, fingerprintKeyPrefix+userID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (c *RedisCache) StoreFingerprint(ctx context.Context, userID, fingerprint string) error {
	return c.client.Set(ctx, fingerprintKeyPrefix+userID, fingerprint, c.policy.FingerprintTTL).Err()
}

func (c *RedisCache) LastCountry(ctx context.Context, userID string) (CountrySighting, error) {
	val, err := c.client.Get(ctx, countryKeyPrefix+userID).Result()
	if err == redis.Nil {
		return CountrySighting{}, nil
	}
	if err != nil {
		return CountrySighting{}, err
	}

	var sighting CountrySighting
	if err := json.Unmarshal([]byte(val), &sighting); err != nil {
		// Corrupt entry reads as no signal.
		return CountrySighting{}, nil
	}
	return sighting, nil
}

func (c *RedisCache) StoreCountry(ctx context.Context, userID string, sighting CountrySighting) error {
	data, err := json.Marshal(sighting)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, countryKeyPrefix+userID, data, c.policy.LocationTTL).Err()
}

func (c *RedisCache) DistinctFingerprints(ctx context.Context, ip, fingerprint string) (int, error) {
	key := churnKeyPrefix + ip

	pipe := c.client.Pipeline()
	pipe.SAdd(ctx, key, fingerprint)
	pipe.Expire(ctx, key, c.policy.ChurnWindow)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}

// MemoryCache is an in-process Cache for tests and single-node deployments.
type MemoryCache struct {
	mu           sync.Mutex
	policy       CachePolicy
	fingerprints map[string]string
	countries    map[string]CountrySighting
	churn        map[string]map[string]time.Time
	now          func() time.Time
}

// NewMemoryCache creates an in-memory cache. A zero policy gets defaults.
func NewMemoryCache(policy CachePolicy) *MemoryCache {
	if policy.FingerprintTTL == 0 {
		policy = DefaultCachePolicy()
	}
	return &MemoryCache{
		policy:       policy,
		fingerprints: make(map[string]string),
		countries:    make(map[string]CountrySighting),
		churn:        make(map[string]map[string]time.Time),
		now:          time.Now,
	}
}

func (c *MemoryCache) LastFingerprint(_ context.Context, userID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fingerprints[userID], nil
}

func (c *MemoryCache) StoreFingerprint(_ context.Context, userID, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fingerprints[userID] = fingerprint
	return nil
}

func (c *MemoryCache) LastCountry(_ context.Context, userID string) (CountrySighting, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countries[userID], nil
}

func (c *MemoryCache) StoreCountry(_ context.Context, userID string, sighting CountrySighting) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countries[userID] = sighting
	return nil
}

func (c *MemoryCache) DistinctFingerprints(_ context.Context, ip, fingerprint string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen, ok := c.churn[ip]
	if !ok {
		seen = make(map[string]time.Time)
		c.churn[ip] = seen
	}

	now := c.now()
	cutoff := now.Add(-c.policy.ChurnWindow)
	for fp, at := range seen {
		if at.Before(cutoff) {
			delete(seen, fp)
		}
	}
	seen[fingerprint] = now

	return len(seen), nil
}
