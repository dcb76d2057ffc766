package session

import (
	"strings"
	"sync"
	"time"
)

// DefaultNoticeTTL is how long a posted notice stays visible.
const DefaultNoticeTTL = 6 * time.Second

// Notice is one transient user-facing message.
type Notice struct {
	Text     string
	PostedAt time.Time
}

// noticeBoard keeps the transient notices and expires them by TTL.
type noticeBoard struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	notices []Notice
}

func newNoticeBoard(ttl time.Duration, now func() time.Time) *noticeBoard {
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	if now == nil {
		now = time.Now
	}
	return &noticeBoard{ttl: ttl, now: now}
}

// Post adds a notice stamped with the current time.
func (b *noticeBoard) Post(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	b.mu.Lock()
	b.notices = append(b.notices, Notice{Text: text, PostedAt: b.now()})
	b.mu.Unlock()
}

// Active returns the unexpired notices, oldest first, pruning the rest.
func (b *noticeBoard) Active() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := b.now().Add(-b.ttl)
	keep := b.notices[:0]
	for _, n := range b.notices {
		if n.PostedAt.After(cutoff) {
			keep = append(keep, n)
		}
	}
	b.notices = keep
	out := make([]Notice, len(keep))
	copy(out, keep)
	return out
}
