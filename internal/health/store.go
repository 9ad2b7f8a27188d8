package health

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the shared-state backend a Checker reads and writes. Two
// implementations exist (design note 9e, reasoned from the teacher's
// own two-tier cache precedent in
// internal/infrastructure/template/cache.go): localStore for a
// single-process deployment, redisStore for a multi-process one that
// needs the checker's view genuinely shared across workers (spec §5).
//
// Neither implementation persists across a full restart of every
// worker plus the backing store itself — that is an explicit non-goal.
type Store interface {
	// Load returns the record for key and true, or a Record in
	// StateHealthy with zero counters and false if none has been
	// recorded yet.
	Load(namespace string, key EndpointKey) (Record, bool)
	Store(namespace string, key EndpointKey, rec Record)
	// BumpVersion increments and returns the namespace's status_ver.
	BumpVersion(namespace string) uint64
	Version(namespace string) uint64
}

// localStore is a single process's in-memory Store: a sync.Map of
// records plus one atomic counter per namespace, the direct analogue of
// the spec's memory-mapped region when there is only one worker.
type localStore struct {
	records sync.Map // map[string]*Record, key = namespace+"|"+EndpointKey
	vers    sync.Map // map[string]*uint64
}

// NewLocalStore returns an in-process Store.
func NewLocalStore() Store {
	return &localStore{}
}

func localKey(namespace string, key EndpointKey) string {
	return fmt.Sprintf("%s|%s|%d|%s", namespace, key.Host, key.Port, key.Hostname)
}

func (s *localStore) Load(namespace string, key EndpointKey) (Record, bool) {
	v, ok := s.records.Load(localKey(namespace, key))
	if !ok {
		return Record{State: StateHealthy}, false
	}
	return *(v.(*Record)), true
}

func (s *localStore) Store(namespace string, key EndpointKey, rec Record) {
	r := rec
	s.records.Store(localKey(namespace, key), &r)
}

func (s *localStore) BumpVersion(namespace string) uint64 {
	v, _ := s.vers.LoadOrStore(namespace, new(uint64))
	ctr := v.(*uint64)
	return atomic.AddUint64(ctr, 1)
}

func (s *localStore) Version(namespace string) uint64 {
	v, ok := s.vers.Load(namespace)
	if !ok {
		return 0
	}
	return atomic.LoadUint64(v.(*uint64))
}

// redisStore backs the same interface with a JSON-encoded string value
// per endpoint key and an INCR-maintained version counter, for deployments that run
// the dispatcher core as multiple OS processes (spec §5's literal
// cross-worker sharing requirement). Keys are namespaced by
// upstream_key and carry a TTL refreshed on every write, so a Redis
// restart just reverts endpoints to their zero state rather than acting
// as durable storage.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore returns a Store backed by client. ttl bounds how long an
// endpoint record survives without being refreshed by an active probe
// or passive report.
func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	return &redisStore{client: client, ttl: ttl}
}

func redisHashKey(namespace string, key EndpointKey) string {
	return fmt.Sprintf("gwcore:health:%s:%s:%d:%s", namespace, key.Host, key.Port, key.Hostname)
}

func redisVerKey(namespace string) string {
	return fmt.Sprintf("gwcore:health:ver:%s", namespace)
}

func (s *redisStore) Load(namespace string, key EndpointKey) (Record, bool) {
	ctx := context.Background()
	raw, err := s.client.Get(ctx, redisHashKey(namespace, key)).Result()
	if err != nil {
		return Record{State: StateHealthy}, false
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{State: StateHealthy}, false
	}
	return rec, true
}

func (s *redisStore) Store(namespace string, key EndpointKey, rec Record) {
	ctx := context.Background()
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, redisHashKey(namespace, key), raw, s.ttl)
	pipe.Exec(ctx)
}

func (s *redisStore) BumpVersion(namespace string) uint64 {
	ctx := context.Background()
	v, err := s.client.Incr(ctx, redisVerKey(namespace)).Result()
	if err != nil {
		return 0
	}
	s.client.Expire(ctx, redisVerKey(namespace), s.ttl)
	return uint64(v)
}

func (s *redisStore) Version(namespace string) uint64 {
	ctx := context.Background()
	v, err := s.client.Get(ctx, redisVerKey(namespace)).Int64()
	if err != nil {
		return 0
	}
	return uint64(v)
}
