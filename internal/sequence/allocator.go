package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/service-desk/internal/domain"
)

// Counter hands out monotonically increasing values per namespace. The
// namespace embeds the creation month, so a new month starts a fresh run.
type Counter interface {
	Next(ctx context.Context, namespace string) (int64, error)
}

// Allocator produces ticket numbers of the form PREFIX-YYMM-NNNNN. Numbers
// are assigned exactly once; callers re-allocate on a storage uniqueness
// conflict rather than reusing a value.
type Allocator struct {
	counter Counter
	now     func() time.Time
}

// NewAllocator builds an allocator over the given counter.
func NewAllocator(counter Counter) *Allocator {
	return &Allocator{counter: counter, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// Allocate reserves the next ticket number for the kind.
func (a *Allocator) Allocate(ctx context.Context, kind domain.RequestKind) (string, error) {
	prefix := kind.NumberPrefix()
	yymm := a.now().UTC().Format("0601")
	n, err := a.counter.Next(ctx, prefix+"-"+yymm)
	if err != nil {
		return "", fmt.Errorf("allocate ticket number: %w", err)
	}
	return fmt.Sprintf("%s-%s-%05d", prefix, yymm, n), nil
}

// RedisCounter serializes the sequence through Redis INCR, which is safe
// across processes.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter wraps a connected client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Next(ctx context.Context, namespace string) (int64, error) {
	return c.client.Incr(ctx, "ticket_seq:"+namespace).Result()
}

// MemoryCounter is the single-process fallback used when Redis is not
// configured, and by tests. Each namespace owns its mutex so unrelated
// ticket kinds never contend.
type MemoryCounter struct {
	mu         sync.Mutex
	namespaces map[string]*namespaceCounter
}

type namespaceCounter struct {
	mu    sync.Mutex
	value int64
}

// NewMemoryCounter builds an empty counter set.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{namespaces: make(map[string]*namespaceCounter)}
}

func (c *MemoryCounter) Next(_ context.Context, namespace string) (int64, error) {
	c.mu.Lock()
	ns, ok := c.namespaces[namespace]
	if !ok {
		ns = &namespaceCounter{}
		c.namespaces[namespace] = ns
	}
	c.mu.Unlock()

	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.value++
	return ns.value, nil
}
