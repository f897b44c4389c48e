// Package file provides a flat-file storage backend: one YAML document per
// entity under a base directory, written atomically via temp-file + rename.
//
// The backend is persistent but NOT concurrency-safe: SetAtomic performs a
// plain read-modify-write with no cross-process locking, so concurrent
// computed updates from separate processes race. Within one process, writes
// through the same Store are mutex-serialized.
package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/cascadekit/cascade/pkg/core"
)

const (
	entityExt      = ".yaml"
	tempFilePrefix = "cascade-tmp-"
)

// document is the on-disk shape of one entity.
type document struct {
	Props map[string]core.Value `yaml:"props"`
	Ext   map[string]core.Value `yaml:"ext,omitempty"`
}

// Store is the directory-backed hub shared by every file-backed entity.
type Store struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used by Watch.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates the hub for one base directory, creating it if needed.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
	}
	s := &Store{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Factory returns the core.StorageFactory binding entities to this
// directory.
func (s *Store) Factory() core.StorageFactory {
	return func(entityName string) (core.Storage, error) {
		if entityName == "" || strings.ContainsAny(entityName, `/\`) {
			return nil, fmt.Errorf("file storage: invalid entity name %q", entityName)
		}
		return &storage{hub: s, name: entityName}, nil
	}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+entityExt)
}

// ListEntities returns the names of all entities with a file on disk.
func (s *Store) ListEntities(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read storage directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, tempFilePrefix) || !strings.HasSuffix(name, entityExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, entityExt))
	}
	return names, nil
}

// Watch reports entity names whose files change on disk, external writers
// included. The channel closes when ctx is done.
func (s *Store) Watch(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", s.dir, err)
	}

	changes := make(chan string)
	go func() {
		defer close(changes)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name, relevant := s.entityFor(event)
				if !relevant {
					continue
				}
				select {
				case changes <- name:
				case <-ctx.Done():
					return
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if s.logger != nil {
					s.logger.Error("fsnotify error", "dir", s.dir, "error", werr)
				}
			}
		}
	}()
	return changes, nil
}

// entityFor maps a filesystem event to the entity it concerns.
func (s *Store) entityFor(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return "", false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, tempFilePrefix) || !strings.HasSuffix(base, entityExt) {
		return "", false
	}
	return strings.TrimSuffix(base, entityExt), true
}

// read loads the document of one entity; a missing file is an empty
// document.
func (s *Store) read(name string) (document, error) {
	doc := document{Props: map[string]core.Value{}, Ext: map[string]core.Value{}}
	raw, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("read entity file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("decode entity file %s: %w", s.path(name), err)
	}
	if doc.Props == nil {
		doc.Props = map[string]core.Value{}
	}
	if doc.Ext == nil {
		doc.Ext = map[string]core.Value{}
	}
	return doc, nil
}

// write persists the document atomically: temp file in the same directory,
// fsync, rename over the target.
func (s *Store) write(name string, doc document) error {
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode entity %q: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, tempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", s.path(name), err)
	}
	return nil
}

type storage struct {
	hub  *Store
	name string
}

var _ core.Storage = (*storage)(nil)

func (doc *document) ns(ns core.Namespace) map[string]core.Value {
	if ns == core.NamespaceExtended {
		return doc.Ext
	}
	return doc.Props
}

func (st *storage) Load(ctx context.Context) (map[string]core.Value, map[string]core.Value, error) {
	st.hub.mu.Lock()
	defer st.hub.mu.Unlock()
	doc, err := st.hub.read(st.name)
	if err != nil {
		return nil, nil, err
	}
	return doc.Props, doc.Ext, nil
}

func (st *storage) Store(ctx context.Context, batch core.Batch) error {
	if batch.Empty() {
		return nil
	}
	st.hub.mu.Lock()
	defer st.hub.mu.Unlock()
	doc, err := st.hub.read(st.name)
	if err != nil {
		return err
	}
	for _, p := range batch.Inserts {
		doc.ns(p.Namespace)[p.Name] = p.Value
	}
	for _, p := range batch.Updates {
		doc.ns(p.Namespace)[p.Name] = p.Value
	}
	for _, p := range batch.Deletes {
		delete(doc.ns(p.Namespace), p.Name)
	}
	return st.hub.write(st.name, doc)
}

func (st *storage) Get(ctx context.Context, name string, ns core.Namespace) (core.Value, error) {
	st.hub.mu.Lock()
	defer st.hub.mu.Unlock()
	doc, err := st.hub.read(st.name)
	if err != nil {
		return nil, err
	}
	v, ok := doc.ns(ns)[name]
	if !ok {
		return nil, &core.PropertyNotFoundError{Entity: st.name, Property: name, Namespace: ns}
	}
	return v, nil
}

func (st *storage) Set(ctx context.Context, prop core.Property) (core.Value, error) {
	st.hub.mu.Lock()
	defer st.hub.mu.Unlock()
	doc, err := st.hub.read(st.name)
	if err != nil {
		return nil, err
	}
	old := doc.ns(prop.Namespace)[prop.Name]
	doc.ns(prop.Namespace)[prop.Name] = prop.Value
	if err := st.hub.write(st.name, doc); err != nil {
		return nil, err
	}
	return old, nil
}

func (st *storage) SetAtomic(ctx context.Context, name string, fn core.ComputeFn, ns core.Namespace) (core.Value, core.Value, error) {
	st.hub.mu.Lock()
	defer st.hub.mu.Unlock()
	doc, err := st.hub.read(st.name)
	if err != nil {
		return nil, nil, err
	}
	old := doc.ns(ns)[name]
	newValue := fn(old)
	doc.ns(ns)[name] = newValue
	if err := st.hub.write(st.name, doc); err != nil {
		return nil, nil, err
	}
	return newValue, old, nil
}

func (st *storage) Delete(ctx context.Context, name string, ns core.Namespace) error {
	st.hub.mu.Lock()
	defer st.hub.mu.Unlock()
	doc, err := st.hub.read(st.name)
	if err != nil {
		return err
	}
	if _, ok := doc.ns(ns)[name]; !ok {
		return &core.PropertyNotFoundError{Entity: st.name, Property: name, Namespace: ns}
	}
	delete(doc.ns(ns), name)
	return st.hub.write(st.name, doc)
}

func (st *storage) Flush(ctx context.Context) error {
	st.hub.mu.Lock()
	defer st.hub.mu.Unlock()
	err := os.Remove(st.hub.path(st.name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove entity file: %w", err)
	}
	return nil
}

func (st *storage) IsPersistent() bool      { return true }
func (st *storage) IsConcurrencySafe() bool { return false }
