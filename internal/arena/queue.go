package arena

import (
	"time"

	"github.com/coder/quartz"
)

// queueEntry is one participant waiting in a mode. It lives until pairing,
// cancel, timeout or transport close.
type queueEntry struct {
	identity   string
	mode       string
	conn       Conn
	enqueuedAt time.Time
	timer      *quartz.Timer
}

// matchQueue is the FIFO of one mode. Guarded by the orchestrator's matchmaker mutex.
type matchQueue struct {
	entries []*queueEntry
}

func (q *matchQueue) push(e *queueEntry) { q.entries = append(q.entries, e) }

// pop removes and returns the earliest entry, or nil.
func (q *matchQueue) pop() *queueEntry {
	if len(q.entries) == 0 {
		return nil
	}
	e := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	return e
}

func (q *matchQueue) remove(e *queueEntry) bool {
	for i, cur := range q.entries {
		if cur == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (q *matchQueue) len() int { return len(q.entries) }
