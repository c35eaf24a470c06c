package chathub

import "sync"

// JoinQueue holds room ids awaiting channel membership. Ids accumulate from
// any caller and drain only inside the post-connect flush, so joins requested
// while offline survive any number of reconnects.
type JoinQueue struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewJoinQueue returns an empty queue.
func NewJoinQueue() *JoinQueue {
	return &JoinQueue{pending: make(map[string]struct{})}
}

// Add unions the given room ids into the pending set.
func (q *JoinQueue) Add(roomIDs ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range roomIDs {
		if id != "" {
			q.pending[id] = struct{}{}
		}
	}
}

// Drain removes and returns every pending id. Callers that fail to emit the
// join must Add the ids back.
func (q *JoinQueue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	ids := make([]string, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	q.pending = make(map[string]struct{})
	return ids
}

// Len reports how many room ids are waiting.
func (q *JoinQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
