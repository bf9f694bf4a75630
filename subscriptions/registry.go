// Package subscriptions keeps track of who wants to hear about which
// submissions, and which submissions each destination never wants to see.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"subscription_watcher/metrics"
	"subscription_watcher/query"
	"subscription_watcher/submission"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("already exists")
	ErrEmptyQuery = errors.New("query is empty")
)

// Subscription is a query registered for a destination, such as a chat or a
// notification channel.
type Subscription struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	QueryText   string    `json:"query"`
	Paused      bool      `json:"paused"`
	CreatedAt   time.Time `json:"created_at"`
}

// Match is a submission that satisfied a subscription and passed its
// destination's blocklist.
type Match struct {
	Subscription Subscription
	Submission   *submission.Submission
}

// Snapshot is the full persistent state of a registry.
type Snapshot struct {
	Subscriptions []Subscription
	Blocks        map[string][]string
}

// Store persists registry changes. Writes happen before the in-memory state
// changes, so a failed write leaves the registry untouched.
type Store interface {
	SaveSubscription(ctx context.Context, sub Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
	SaveBlock(ctx context.Context, destination, text string) error
	DeleteBlock(ctx context.Context, destination, text string) error
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore persists every change to s.
func WithStore(s Store) Option {
	return func(r *Registry) {
		r.store = s
	}
}

// WithCache shares a compiled query cache with other components.
func WithCache(c *Cache) Option {
	return func(r *Registry) {
		r.cache = c
	}
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

type entry struct {
	Subscription
	query *query.Query
}

// Registry holds subscriptions and per-destination blocklists. It is safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	subs       map[string]*entry
	blocks     map[string][]string
	blocklists map[string]*query.Query

	cache *Cache
	store Store
	now   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		subs:       make(map[string]*entry),
		blocks:     make(map[string][]string),
		blocklists: make(map[string]*query.Query),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewCache()
	}
	return r
}

// compile validates text and returns its compiled query.
func (r *Registry) compile(text string) (*query.Query, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	return r.cache.Get(text)
}

// Add subscribes destination to submissions matching text.
func (r *Registry) Add(ctx context.Context, destination, text string) (Subscription, error) {
	return r.add(ctx, destination, text, false)
}

// AddPaused is Add for a subscription that starts paused. The subscription
// is saved once, already paused, so a failed save leaves nothing behind.
func (r *Registry) AddPaused(ctx context.Context, destination, text string) (Subscription, error) {
	return r.add(ctx, destination, text, true)
}

func (r *Registry) add(ctx context.Context, destination, text string, paused bool) (Subscription, error) {
	text = strings.TrimSpace(text)
	q, err := r.compile(text)
	if err != nil {
		return Subscription{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.subs {
		if e.Destination == destination && e.QueryText == text {
			return Subscription{}, fmt.Errorf("subscription to %q: %w", text, ErrDuplicate)
		}
	}

	sub := Subscription{
		ID:          uuid.NewString(),
		Destination: destination,
		QueryText:   text,
		Paused:      paused,
		CreatedAt:   r.now().UTC(),
	}
	if r.store != nil {
		if err := r.store.SaveSubscription(ctx, sub); err != nil {
			return Subscription{}, fmt.Errorf("failed to save subscription: %w", err)
		}
	}

	r.subs[sub.ID] = &entry{Subscription: sub, query: q}
	metrics.Subscriptions.Set(float64(len(r.subs)))
	return sub, nil
}

// Remove deletes a subscription.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.subs[id]
	if !ok {
		return fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	if r.store != nil {
		if err := r.store.DeleteSubscription(ctx, id); err != nil {
			return fmt.Errorf("failed to delete subscription: %w", err)
		}
	}

	delete(r.subs, id)
	r.forgetUnused(e.QueryText)
	metrics.Subscriptions.Set(float64(len(r.subs)))
	return nil
}

// Get returns a subscription by ID.
func (r *Registry) Get(id string) (Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.subs[id]
	if !ok {
		return Subscription{}, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	return e.Subscription, nil
}

// List returns the subscriptions of destination, or of every destination
// when it is empty, oldest first.
func (r *Registry) List(destination string) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var subs []Subscription
	for _, e := range r.subs {
		if destination == "" || e.Destination == destination {
			subs = append(subs, e.Subscription)
		}
	}
	sortSubscriptions(subs)
	return subs
}

func sortSubscriptions(subs []Subscription) {
	slices.SortFunc(subs, func(a, b Subscription) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// SetPaused pauses or resumes a subscription.
func (r *Registry) SetPaused(ctx context.Context, id string, paused bool) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.subs[id]
	if !ok {
		return Subscription{}, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	if e.Paused == paused {
		return e.Subscription, nil
	}

	updated := e.Subscription
	updated.Paused = paused
	if r.store != nil {
		if err := r.store.SaveSubscription(ctx, updated); err != nil {
			return Subscription{}, fmt.Errorf("failed to save subscription: %w", err)
		}
	}
	e.Subscription = updated
	return updated, nil
}

// AddBlock adds text to destination's blocklist.
func (r *Registry) AddBlock(ctx context.Context, destination, text string) error {
	text = strings.TrimSpace(text)
	if _, err := r.compile(text); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Contains(r.blocks[destination], text) {
		return fmt.Errorf("block %q: %w", text, ErrDuplicate)
	}
	if r.store != nil {
		if err := r.store.SaveBlock(ctx, destination, text); err != nil {
			return fmt.Errorf("failed to save block: %w", err)
		}
	}

	r.blocks[destination] = append(r.blocks[destination], text)
	r.rebuildBlocklist(destination)
	return nil
}

// RemoveBlock removes text from destination's blocklist.
func (r *Registry) RemoveBlock(ctx context.Context, destination, text string) error {
	text = strings.TrimSpace(text)

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.Index(r.blocks[destination], text)
	if idx < 0 {
		return fmt.Errorf("block %q: %w", text, ErrNotFound)
	}
	if r.store != nil {
		if err := r.store.DeleteBlock(ctx, destination, text); err != nil {
			return fmt.Errorf("failed to delete block: %w", err)
		}
	}

	r.blocks[destination] = slices.Delete(r.blocks[destination], idx, idx+1)
	if len(r.blocks[destination]) == 0 {
		delete(r.blocks, destination)
	}
	r.rebuildBlocklist(destination)
	r.forgetUnused(text)
	return nil
}

// Blocks returns destination's blocklist entries in the order they were added.
func (r *Registry) Blocks(destination string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.blocks[destination])
}

// Blocklist returns the compiled blocklist of destination. A destination with
// no blocks gets a blocklist that lets everything through.
func (r *Registry) Blocklist(destination string) *query.Query {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.blocklistLocked(destination)
}

func (r *Registry) blocklistLocked(destination string) *query.Query {
	if bl, ok := r.blocklists[destination]; ok {
		return bl
	}
	return query.Blocklist()
}

// rebuildBlocklist recompiles the combined blocklist of destination. Callers
// hold the write lock, and every entry was validated when it was added.
func (r *Registry) rebuildBlocklist(destination string) {
	texts := r.blocks[destination]
	if len(texts) == 0 {
		delete(r.blocklists, destination)
		return
	}
	blocked := make([]*query.Query, 0, len(texts))
	for _, text := range texts {
		q, err := r.cache.Get(text)
		if err != nil {
			continue
		}
		blocked = append(blocked, q)
	}
	r.blocklists[destination] = query.Blocklist(blocked...)
}

// forgetUnused drops text from the cache when nothing refers to it anymore.
func (r *Registry) forgetUnused(text string) {
	for _, e := range r.subs {
		if e.QueryText == text {
			return
		}
	}
	for _, texts := range r.blocks {
		if slices.Contains(texts, text) {
			return
		}
	}
	r.cache.Forget(text)
}

// Check evaluates every active subscription against s and returns the ones
// that match and are not blocked for their destination, oldest first.
func (r *Registry) Check(s *submission.Submission) []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	passes := make(map[string]bool)
	var matches []Match
	for _, e := range r.subs {
		if e.Paused || !e.query.Matches(s) {
			continue
		}
		pass, ok := passes[e.Destination]
		if !ok {
			pass = r.blocklistLocked(e.Destination).Matches(s)
			passes[e.Destination] = pass
		}
		if !pass {
			metrics.Blocked.Inc()
			continue
		}
		matches = append(matches, Match{Subscription: e.Subscription, Submission: s})
	}

	slices.SortFunc(matches, func(a, b Match) int {
		if c := a.Subscription.CreatedAt.Compare(b.Subscription.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Subscription.ID, b.Subscription.ID)
	})
	return matches
}

// Snapshot returns a copy of the registry's persistent state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{Blocks: make(map[string][]string, len(r.blocks))}
	for _, e := range r.subs {
		snap.Subscriptions = append(snap.Subscriptions, e.Subscription)
	}
	sortSubscriptions(snap.Subscriptions)
	for dest, texts := range r.blocks {
		snap.Blocks[dest] = slices.Clone(texts)
	}
	return snap
}

// Restore loads a snapshot without writing to the store. Entries whose query
// no longer compiles are skipped and reported in the returned errors.
func (r *Registry) Restore(snap Snapshot) []error {
	var errs []error

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range snap.Subscriptions {
		q, err := r.compile(sub.QueryText)
		if err != nil {
			errs = append(errs, fmt.Errorf("subscription %s (%q): %w", sub.ID, sub.QueryText, err))
			continue
		}
		if sub.ID == "" {
			sub.ID = uuid.NewString()
		}
		r.subs[sub.ID] = &entry{Subscription: sub, query: q}
	}

	for dest, texts := range snap.Blocks {
		for _, text := range texts {
			if _, err := r.compile(text); err != nil {
				errs = append(errs, fmt.Errorf("block for %s (%q): %w", dest, text, err))
				continue
			}
			if !slices.Contains(r.blocks[dest], text) {
				r.blocks[dest] = append(r.blocks[dest], text)
			}
		}
		r.rebuildBlocklist(dest)
	}

	metrics.Subscriptions.Set(float64(len(r.subs)))
	return errs
}
