// Package menu models the user action menu surface that the sync layer
// registers its capabilities into. The surface itself is rendered elsewhere;
// this package owns the item registry and the pin/remove registrations.
package menu

import (
	"sync"

	"github.com/mivora/stagesync/internal/core"
)

// Item keys registered by this layer.
const (
	KeyPinForEveryone = "pin-for-everyone"
	KeyRemoveFromRoom = "remove-from-room"
)

// Visibility scopes for menu items.
const (
	VisibilityHostRemote = "host-remote"
	VisibilityHostSelf   = "host-self"
)

// Item is one action menu entry. OnAction receives the menu's target uid and
// the host meeting id of the current session.
type Item struct {
	Order      int
	Hide       bool
	Disabled   bool
	Label      string
	Visibility []string
	OnAction   func(target core.UID, hostMeetingID string)
}

// Surface is the external menu collaborator. UpdateItems must be idempotent:
// re-registering identical content is a no-op from the surface's perspective.
type Surface interface {
	UpdateItems(items map[string]Item)
}

// Registry is an in-process Surface that tracks how many updates actually
// changed content. The production surface lives in the UI shell; this one
// backs tests and headless runs.
type Registry struct {
	mu        sync.Mutex
	items     map[string]Item
	revisions int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Item)}
}

// UpdateItems stores items, skipping the revision bump when nothing visible
// changed. Handlers are not comparable and are always refreshed.
func (r *Registry) UpdateItems(items map[string]Item) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := len(items) != len(r.items)
	if !changed {
		for key, item := range items {
			prev, ok := r.items[key]
			if !ok || !sameItem(prev, item) {
				changed = true
				break
			}
		}
	}

	r.items = make(map[string]Item, len(items))
	for key, item := range items {
		r.items[key] = item
	}
	if changed {
		r.revisions++
	}
}

// Item returns the registered entry for key.
func (r *Registry) Item(key string) (Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[key]
	return item, ok
}

// Revisions returns how many UpdateItems calls changed content.
func (r *Registry) Revisions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revisions
}

func sameItem(a, b Item) bool {
	if a.Order != b.Order || a.Hide != b.Hide || a.Disabled != b.Disabled || a.Label != b.Label {
		return false
	}
	if len(a.Visibility) != len(b.Visibility) {
		return false
	}
	for i := range a.Visibility {
		if a.Visibility[i] != b.Visibility[i] {
			return false
		}
	}
	return true
}
