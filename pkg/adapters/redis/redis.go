// Package redis provides the Redis storage backend. Each entity maps to two
// hashes, "<prefix><name>" for the reactive namespace and "<prefix><name>:ext"
// for the extended one, with JSON-encoded field values.
//
// The backend is persistent and concurrency-safe: SetAtomic runs a WATCH
// based compare-and-swap loop, Store applies its batch inside one MULTI/EXEC
// transaction (all-or-none).
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/cascadekit/cascade/pkg/core"
)

// casRetries bounds the WATCH retry loop of SetAtomic.
const casRetries = 64

// Options configures a client plus the key prefix shared by all entities.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewClient builds the go-redis client for Options.
func NewClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Factory returns the core.StorageFactory binding entities to one client.
func Factory(client *redis.Client, prefix string) core.StorageFactory {
	return func(entityName string) (core.Storage, error) {
		if entityName == "" {
			return nil, errors.New("redis storage: empty entity name")
		}
		return &Storage{client: client, name: entityName, prefix: prefix}, nil
	}
}

// ListEntities scans for the names of all entities stored under one prefix.
func ListEntities(ctx context.Context, client *redis.Client, prefix string) ([]string, error) {
	seen := map[string]bool{}
	var names []string
	iter := client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		name := strings.TrimPrefix(iter.Val(), prefix)
		name = strings.TrimSuffix(name, ":ext")
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s*: %w", prefix, err)
	}
	return names, nil
}

// Storage is the Redis-backed core.Storage for one entity.
type Storage struct {
	client *redis.Client
	name   string
	prefix string
}

var _ core.Storage = (*Storage)(nil)

func (s *Storage) key(ns core.Namespace) string {
	if ns == core.NamespaceExtended {
		return s.prefix + s.name + ":ext"
	}
	return s.prefix + s.name
}

func encode(v core.Value) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode property value: %w", err)
	}
	return string(raw), nil
}

func decode(raw string) (core.Value, error) {
	var v core.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode property value: %w", err)
	}
	return v, nil
}

func decodeAll(fields map[string]string) (map[string]core.Value, error) {
	out := make(map[string]core.Value, len(fields))
	for k, raw := range fields {
		v, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func (s *Storage) Load(ctx context.Context) (map[string]core.Value, map[string]core.Value, error) {
	rawProps, err := s.client.HGetAll(ctx, s.key(core.NamespaceReactive)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("hgetall %s: %w", s.key(core.NamespaceReactive), err)
	}
	rawExt, err := s.client.HGetAll(ctx, s.key(core.NamespaceExtended)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("hgetall %s: %w", s.key(core.NamespaceExtended), err)
	}
	props, err := decodeAll(rawProps)
	if err != nil {
		return nil, nil, err
	}
	ext, err := decodeAll(rawExt)
	if err != nil {
		return nil, nil, err
	}
	return props, ext, nil
}

func (s *Storage) Store(ctx context.Context, batch core.Batch) error {
	if batch.Empty() {
		return nil
	}
	sets := map[string][]any{}
	for _, p := range append(append([]core.Property{}, batch.Inserts...), batch.Updates...) {
		raw, err := encode(p.Value)
		if err != nil {
			return fmt.Errorf("property %q: %w", p.Name, err)
		}
		key := s.key(p.Namespace)
		sets[key] = append(sets[key], p.Name, raw)
	}
	dels := map[string][]string{}
	for _, p := range batch.Deletes {
		key := s.key(p.Namespace)
		dels[key] = append(dels[key], p.Name)
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, pairs := range sets {
			pipe.HSet(ctx, key, pairs...)
		}
		for key, fields := range dels {
			pipe.HDel(ctx, key, fields...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store batch: %w", err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, name string, ns core.Namespace) (core.Value, error) {
	raw, err := s.client.HGet(ctx, s.key(ns), name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, &core.PropertyNotFoundError{Entity: s.name, Property: name, Namespace: ns}
	}
	if err != nil {
		return nil, fmt.Errorf("hget %s %s: %w", s.key(ns), name, err)
	}
	return decode(raw)
}

func (s *Storage) Set(ctx context.Context, prop core.Property) (core.Value, error) {
	raw, err := encode(prop.Value)
	if err != nil {
		return nil, err
	}
	var old core.Value
	key := s.key(prop.Namespace)
	prev, err := s.client.HGet(ctx, key, prop.Name).Result()
	switch {
	case errors.Is(err, redis.Nil):
		old = nil
	case err != nil:
		return nil, fmt.Errorf("hget %s %s: %w", key, prop.Name, err)
	default:
		if old, err = decode(prev); err != nil {
			return nil, err
		}
	}
	if err := s.client.HSet(ctx, key, prop.Name, raw).Err(); err != nil {
		return nil, fmt.Errorf("hset %s %s: %w", key, prop.Name, err)
	}
	return old, nil
}

func (s *Storage) SetAtomic(ctx context.Context, name string, fn core.ComputeFn, ns core.Namespace) (core.Value, core.Value, error) {
	key := s.key(ns)
	var newValue, old core.Value

	txn := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, name).Result()
		switch {
		case errors.Is(err, redis.Nil):
			old = nil
		case err != nil:
			return err
		default:
			if old, err = decode(raw); err != nil {
				return err
			}
		}
		newValue = fn(old)
		encoded, err := encode(newValue)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, name, encoded)
			return nil
		})
		return err
	}

	for i := 0; i < casRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return newValue, old, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, nil, fmt.Errorf("watch %s: %w", key, err)
	}
	return nil, nil, fmt.Errorf("set atomic %s %s: retries exhausted", key, name)
}

func (s *Storage) Delete(ctx context.Context, name string, ns core.Namespace) error {
	removed, err := s.client.HDel(ctx, s.key(ns), name).Result()
	if err != nil {
		return fmt.Errorf("hdel %s %s: %w", s.key(ns), name, err)
	}
	if removed == 0 {
		return &core.PropertyNotFoundError{Entity: s.name, Property: name, Namespace: ns}
	}
	return nil
}

func (s *Storage) Flush(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key(core.NamespaceReactive), s.key(core.NamespaceExtended)).Err(); err != nil {
		return fmt.Errorf("del entity keys: %w", err)
	}
	return nil
}

func (s *Storage) IsPersistent() bool      { return true }
func (s *Storage) IsConcurrencySafe() bool { return true }
