package conv

import "sort"

// Entity is implemented by every value a Registry holds.
type Entity interface {
	Counters() *CounterBlock
}

// Registry maps a conversation id to its entity. Only one orientation of a
// key is ever stored.
type Registry[T any] struct {
	entries map[string]*T
	newFn   func(id, firstSpeaker string) *T
}

// NewRegistry returns an empty registry that builds entities with newFn.
func NewRegistry[T any](newFn func(id, firstSpeaker string) *T) *Registry[T] {
	return &Registry[T]{
		entries: make(map[string]*T),
		newFn:   newFn,
	}
}

// Lookup returns the entity stored under either orientation of k.
func (r *Registry[T]) Lookup(k Key) (string, *T, bool) {
	if e, ok := r.entries[k.Canonical]; ok {
		return k.Canonical, e, true
	}
	if e, ok := r.entries[k.Mirror]; ok {
		return k.Mirror, e, true
	}
	return "", nil, false
}

// Create stores a new entity under id. An existing entity is returned
// untouched.
func (r *Registry[T]) Create(id, firstSpeaker string) *T {
	if e, ok := r.entries[id]; ok {
		return e
	}
	e := r.newFn(id, firstSpeaker)
	r.entries[id] = e
	return e
}

// Resolve finds the entity for k, creating it under the canonical key with
// speaker as first speaker when neither orientation exists.
func (r *Registry[T]) Resolve(k Key, speaker string) (string, *T) {
	if id, e, ok := r.Lookup(k); ok {
		return id, e
	}
	return k.Canonical, r.Create(k.Canonical, speaker)
}

func (r *Registry[T]) Get(id string) (*T, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// Keys returns every id in ascending order.
func (r *Registry[T]) Keys() []string {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry[T]) Len() int { return len(r.entries) }

// Registries owns the four relationship tables of one analysis run.
type Registries struct {
	HostPairs *Registry[HostPair]
	TCP       *Registry[TCPConversation]
	Ethernet  *Registry[EthernetStats]
	Protocols *Registry[ProtocolStats]
}

func NewRegistries() *Registries {
	return &Registries{
		HostPairs: NewRegistry(NewHostPair),
		TCP:       NewRegistry(NewTCPConversation),
		Ethernet:  NewRegistry(NewEthernetStats),
		Protocols: NewRegistry(NewProtocolStats),
	}
}
