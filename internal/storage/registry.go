package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/craftlink/craftlink/internal/domain"
)

// Fixed keys of the three persisted records
const (
	KeyUsers           = "users"
	KeyActivityMonitor = "activity_monitor"
	KeyGuild           = "guild"
)

// Registry provides typed access to the linked-user registry. Every record
// is read and written whole. Update* calls are serialized so read-modify-write
// sequences in this process never interleave; plain Set* calls take the same
// lock but overwrite unconditionally.
type Registry struct {
	kv      KV
	writeMu sync.Mutex
}

// NewRegistry wraps a KV backend
func NewRegistry(kv KV) *Registry {
	return &Registry{kv: kv}
}

// KV returns the underlying store
func (r *Registry) KV() KV {
	return r.kv
}

// load decodes key into out. A missing key is initialized with init under
// the writer lock; held reports whether the caller already owns that lock.
func (r *Registry) load(ctx context.Context, key string, out, init any, held bool) error {
	data, err := r.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		if !held {
			r.writeMu.Lock()
			defer r.writeMu.Unlock()

			// Another writer may have created it while we waited
			data, err = r.kv.Get(ctx, key)
		}
		if errors.Is(err, ErrNotFound) {
			return r.store(ctx, key, init)
		}
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (r *Registry) store(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return r.kv.Set(ctx, key, data)
}

// --- Users ---

// Users returns every linked user, creating the empty collection on first use
func (r *Registry) Users(ctx context.Context) ([]domain.LinkedUser, error) {
	return r.users(ctx, false)
}

func (r *Registry) users(ctx context.Context, held bool) ([]domain.LinkedUser, error) {
	var users []domain.LinkedUser
	if err := r.load(ctx, KeyUsers, &users, []domain.LinkedUser{}, held); err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.LinkedUser{}
	}
	return users, nil
}

// SetUsers replaces the whole collection
func (r *Registry) SetUsers(ctx context.Context, users []domain.LinkedUser) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.store(ctx, KeyUsers, users)
}

// UpdateUsers fetches the collection, lets fn modify it and writes it back.
// When fn returns false the write is skipped.
func (r *Registry) UpdateUsers(ctx context.Context, fn func(users []domain.LinkedUser) ([]domain.LinkedUser, bool, error)) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	users, err := r.users(ctx, true)
	if err != nil {
		return err
	}

	users, changed, err := fn(users)
	if err != nil || !changed {
		return err
	}
	return r.store(ctx, KeyUsers, users)
}

// --- Activity monitor ---

// ActivityMonitor returns the display pointer, creating an empty one on first use
func (r *Registry) ActivityMonitor(ctx context.Context) (domain.ActivityMonitor, error) {
	return r.activityMonitor(ctx, false)
}

func (r *Registry) activityMonitor(ctx context.Context, held bool) (domain.ActivityMonitor, error) {
	var m domain.ActivityMonitor
	if err := r.load(ctx, KeyActivityMonitor, &m, domain.ActivityMonitor{}, held); err != nil {
		return domain.ActivityMonitor{}, err
	}
	return m, nil
}

// SetActivityMonitor replaces the display pointer
func (r *Registry) SetActivityMonitor(ctx context.Context, m domain.ActivityMonitor) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.store(ctx, KeyActivityMonitor, m)
}

// UpdateActivityMonitor is the read-modify-write form of SetActivityMonitor
func (r *Registry) UpdateActivityMonitor(ctx context.Context, fn func(m domain.ActivityMonitor) (domain.ActivityMonitor, bool, error)) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	m, err := r.activityMonitor(ctx, true)
	if err != nil {
		return err
	}

	m, changed, err := fn(m)
	if err != nil || !changed {
		return err
	}
	return r.store(ctx, KeyActivityMonitor, m)
}

// --- Home guild ---

// Guild returns the home guild ID, or "" when none was set
func (r *Registry) Guild(ctx context.Context) (string, error) {
	var id string
	if err := r.load(ctx, KeyGuild, &id, "", false); err != nil {
		return "", err
	}
	return id, nil
}

// SetGuild records the home guild
func (r *Registry) SetGuild(ctx context.Context, guildID string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.store(ctx, KeyGuild, guildID)
}
