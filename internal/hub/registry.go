package hub

import "sync"

// Registry is the process-wide mapping from stream name to the set of
// connections subscribed to it. It is the only shared mutable state in the
// hub; every access goes through one mutex. A reverse index (connection to
// stream names) makes the disconnect sweep a single locked pass.
type Registry struct {
	mu      sync.Mutex
	streams map[string]map[*Conn]struct{}
	conns   map[*Conn]map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		streams: make(map[string]map[*Conn]struct{}),
		conns:   make(map[*Conn]map[string]struct{}),
	}
}

// Track records a connection with no subscriptions yet. Untracked
// connections cannot subscribe.
func (r *Registry) Track(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; !ok {
		r.conns[c] = make(map[string]struct{})
	}
}

// Subscribe adds c to the set for stream. Subscribing twice is a no-op.
// It reports whether the membership is new, so callers can keep gauges
// accurate without a second lookup.
func (r *Registry) Subscribe(c *Conn, stream string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.conns[c]
	if !ok {
		// Connection already swept by Drop — it is mid-teardown.
		return false
	}
	if _, ok := subs[stream]; ok {
		return false
	}
	subs[stream] = struct{}{}

	set, ok := r.streams[stream]
	if !ok {
		set = make(map[*Conn]struct{})
		r.streams[stream] = set
	}
	set[c] = struct{}{}
	return true
}

// Unsubscribe removes c from the set for stream, pruning the entry when the
// set becomes empty. Removing a non-member is a no-op. It reports whether a
// membership was actually removed.
func (r *Registry) Unsubscribe(c *Conn, stream string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(c, stream)
}

// Drop removes c from every stream it is subscribed to and stops tracking
// it, in one atomic sweep. It returns the number of memberships removed.
func (r *Registry) Drop(c *Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for stream := range r.conns[c] {
		if r.removeLocked(c, stream) {
			removed++
		}
	}
	delete(r.conns, c)
	return removed
}

func (r *Registry) removeLocked(c *Conn, stream string) bool {
	set, ok := r.streams[stream]
	if _, member := set[c]; !ok || !member {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.streams, stream)
	}
	if subs, ok := r.conns[c]; ok {
		delete(subs, stream)
	}
	return true
}

// Snapshot returns a copy of the subscriber set for stream. Callers iterate
// it without holding the registry lock, so slow writes cannot stall
// concurrent subscribes or other broadcasts.
func (r *Registry) Snapshot(stream string) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.streams[stream]
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// All returns a copy of every tracked connection, subscribed or not.
func (r *Registry) All() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Conns returns the number of tracked connections.
func (r *Registry) Conns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Streams returns the number of stream entries with at least one subscriber.
func (r *Registry) Streams() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// HasStream reports whether an entry for stream exists. Entries are pruned
// as soon as their last subscriber leaves, so this doubles as a leak check.
func (r *Registry) HasStream(stream string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.streams[stream]
	return ok
}
