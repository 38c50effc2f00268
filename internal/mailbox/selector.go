// Package mailbox manages the sender identity pool: persistence, the
// single-pick selector, and proportional batch distribution.
package mailbox

import (
	"sort"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/throttle"
)

// SelectMailbox picks the best sender for one job: throttled identities are
// filtered out, then the one with the most remaining daily headroom wins.
// Ties break on ascending mailbox ID so repeated calls with an identical
// pool are deterministic. Returns nil when no identity can send now.
func SelectMailbox(pool []domain.Mailbox, now time.Time) *domain.Mailbox {
	var best *domain.Mailbox
	for i := range pool {
		m := &pool[i]
		if d := throttle.Evaluate(m.SendingState, m.Throttle, now); d.Throttled {
			continue
		}
		if best == nil {
			best = m
			continue
		}
		bh, mh := best.SendingState.DailyHeadroom(), m.SendingState.DailyHeadroom()
		if mh > bh || (mh == bh && m.ID < best.ID) {
			best = m
		}
	}
	return best
}

// Allocation is one identity's share of a distributed batch.
type Allocation struct {
	MailboxID string `json:"mailbox_id"`
	Count     int    `json:"count"`
}

// DistributeJobs splits n jobs across the pool proportionally to each
// identity's usable capacity (the tighter of its daily and hourly
// headroom). Identities with no capacity get nothing. Shares use ceiling
// rounding clamped to the identity's own capacity and to the unassigned
// remainder, so the total never exceeds n and never exceeds any identity's
// capacity. If the pool's aggregate capacity is short of n, the deficit is
// left unassigned for the caller to re-queue.
func DistributeJobs(n int, pool []domain.Mailbox) []Allocation {
	if n <= 0 || len(pool) == 0 {
		return nil
	}

	type candidate struct {
		id       string
		capacity int
	}

	var candidates []candidate
	total := 0
	for _, m := range pool {
		c := m.SendingState.UsableCapacity()
		if c <= 0 {
			continue
		}
		candidates = append(candidates, candidate{id: m.ID, capacity: c})
		total += c
	}
	if total == 0 {
		return nil
	}

	// Largest capacity first so ceiling rounding favors underused senders;
	// ID order keeps equal-capacity runs deterministic.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].capacity != candidates[j].capacity {
			return candidates[i].capacity > candidates[j].capacity
		}
		return candidates[i].id < candidates[j].id
	})

	remaining := n
	var allocations []Allocation
	for _, c := range candidates {
		if remaining <= 0 {
			break
		}
		share := (n*c.capacity + total - 1) / total // ceil(n * capacity / total)
		if share > c.capacity {
			share = c.capacity
		}
		if share > remaining {
			share = remaining
		}
		if share <= 0 {
			continue
		}
		allocations = append(allocations, Allocation{MailboxID: c.id, Count: share})
		remaining -= share
	}

	return allocations
}
