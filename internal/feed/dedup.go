package feed

import (
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

const (
	// defaultDedupTTL is how long a seen frame hash is remembered.
	defaultDedupTTL = 30 * time.Second

	// cleanupInterval is the interval between expiry sweeps.
	cleanupInterval = 5 * time.Second
)

// Dedup filters recently seen frames so reconnects and rebroadcasts do
// not deliver the same event twice. Hashes expire after a TTL.
type Dedup struct {
	seen map[[32]byte]int64 // seen maps frame hash to timestamp (unix nano)
	mu   sync.RWMutex
	ttl  int64
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewDedup creates a frame deduplication filter.
func NewDedup() *Dedup {
	d := &Dedup{
		seen: make(map[[32]byte]int64),
		ttl:  int64(defaultDedupTTL),
		stop: make(chan struct{}),
	}

	d.startCleanup()

	return d
}

// Check returns true if the frame is new. New frames are recorded.
func (d *Dedup) Check(data []byte) bool {
	hash := blake3.Sum256(data)
	now := time.Now().UnixNano()

	d.mu.RLock()
	ts, exists := d.seen[hash]
	d.mu.RUnlock()

	if exists && now-ts < d.ttl {
		return false
	}

	d.mu.Lock()
	// Double-check after acquiring the write lock
	ts, exists = d.seen[hash]
	if exists && now-ts < d.ttl {
		d.mu.Unlock()
		return false
	}

	d.seen[hash] = now
	d.mu.Unlock()

	return true
}

// Close stops the cleanup goroutine.
func (d *Dedup) Close() {
	close(d.stop)
	d.wg.Wait()
}

// startCleanup starts the background expiry sweep.
func (d *Dedup) startCleanup() {
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				d.cleanup()
			case <-d.stop:
				return
			}
		}
	}()
}

// cleanup removes expired entries.
func (d *Dedup) cleanup() {
	now := time.Now().UnixNano()

	d.mu.Lock()

	for hash, ts := range d.seen {
		if now-ts >= d.ttl {
			delete(d.seen, hash)
		}
	}

	d.mu.Unlock()
}
