package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/bryanwahyu/leasecheck/internal/domain/lease"
)

// Entry is a notification with its position in the feed.
type Entry struct {
	Seq  uint64    `json:"seq"`
	At   time.Time `json:"at"`
	lease.Notification
}

// Feed keeps the most recent notifications so a polling front-end can show
// them. It satisfies lease.Notifier and forwards to Next when set.
type Feed struct {
	Next lease.Notifier

	mu      sync.Mutex
	size    int
	seq     uint64
	entries []Entry
}

func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 100
	}
	return &Feed{size: size}
}

func (f *Feed) Notify(ctx context.Context, n lease.Notification) {
	f.mu.Lock()
	f.seq++
	f.entries = append(f.entries, Entry{Seq: f.seq, At: time.Now(), Notification: n})
	if len(f.entries) > f.size {
		f.entries = append([]Entry(nil), f.entries[len(f.entries)-f.size:]...)
	}
	f.mu.Unlock()

	if f.Next != nil {
		f.Next.Notify(ctx, n)
	}
}

// Since returns entries newer than seq, oldest first.
func (f *Feed) Since(seq uint64) []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Entry{}
	for _, e := range f.entries {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Seq is the sequence number of the latest entry.
func (f *Feed) Seq() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}
