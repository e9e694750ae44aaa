package fanout

import (
	"errors"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
)

// Delivery errors returned by Channel implementations. The dispatcher treats
// any send error as terminal for the channel.
var (
	ErrChannelClosed  = errors.New("fanout: channel closed")
	ErrSendBufferFull = errors.New("fanout: send buffer full")
)

// Channel is one live delivery path to a subscriber. Send must not block:
// implementations report a full outgoing buffer as an error instead of
// waiting on a slow peer.
type Channel interface {
	Send(msg []byte) error
	Close() error
}

// Handle identifies one registered channel. Handles are independently
// addressable even when a subject holds several channels.
type Handle struct {
	id      string
	subject string
	ch      Channel
}

// Subject returns the subject this handle is registered under.
func (h *Handle) Subject() string { return h.subject }

// shardCount fixes the number of registry shards. Power of two so the hash
// distributes evenly.
const shardCount = 16

type shard struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*Handle // subject → handle id → handle
}

// Registry is the concurrency-safe mapping from subjects to their live
// channels. All methods are safe for concurrent use from any number of
// connection lifecycles and dispatch passes.
type Registry struct {
	shards [shardCount]shard
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].buckets = make(map[string]map[string]*Handle)
	}
	return r
}

func (r *Registry) shardFor(subject string) *shard {
	h := fnv.New32a()
	h.Write([]byte(subject)) //nolint:errcheck
	return &r.shards[h.Sum32()%shardCount]
}

// Register adds ch under subject's bucket and returns its handle.
func (r *Registry) Register(subject string, ch Channel) *Handle {
	handle := &Handle{id: uuid.NewString(), subject: subject, ch: ch}

	s := r.shardFor(subject)
	s.mu.Lock()
	bucket, ok := s.buckets[subject]
	if !ok {
		bucket = make(map[string]*Handle)
		s.buckets[subject] = bucket
	}
	bucket[handle.id] = handle
	s.mu.Unlock()

	return handle
}

// Unregister removes h from the registry. Idempotent: unregistering a handle
// that is already gone is a no-op. The bucket is pruned when its last channel
// leaves.
func (r *Registry) Unregister(h *Handle) {
	s := r.shardFor(h.subject)
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[h.subject]
	if !ok {
		return
	}
	if _, ok := bucket[h.id]; !ok {
		return
	}
	delete(bucket, h.id)
	if len(bucket) == 0 {
		delete(s.buckets, h.subject)
	}
}

// ChannelsFor returns a snapshot of the handles registered for subject at
// call time. Channels may die concurrently; callers must treat delivery as
// best-effort.
func (r *Registry) ChannelsFor(subject string) []*Handle {
	s := r.shardFor(subject)
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.buckets[subject]
	out := make([]*Handle, 0, len(bucket))
	for _, h := range bucket {
		out = append(out, h)
	}
	return out
}

// All returns a snapshot of every handle across every subject.
func (r *Registry) All() []*Handle {
	var out []*Handle
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, bucket := range s.buckets {
			for _, h := range bucket {
				out = append(out, h)
			}
		}
		s.mu.RUnlock()
	}
	return out
}

// Count returns the total number of live channels.
func (r *Registry) Count() int {
	var n int
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, bucket := range s.buckets {
			n += len(bucket)
		}
		s.mu.RUnlock()
	}
	return n
}

// Subjects returns the number of subjects with at least one live channel.
func (r *Registry) Subjects() int {
	var n int
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.buckets)
		s.mu.RUnlock()
	}
	return n
}
