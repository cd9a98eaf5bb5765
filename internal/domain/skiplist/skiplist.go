// Package skiplist implements the leaderboard's ranking index: a
// probabilistic skip list ordered by (score DESC, user_id ASC), with a
// side map for O(1) user lookups and span-augmented forward pointers
// for O(log n) expected rank queries.
package skiplist

import (
	"math/rand"
	"time"
)

// maxLevel and p follow the classic Pugh skip list parameters used by
// Redis' zskiplist: capped fan-out, coin-flip promotion.
const (
	maxLevel = 20
	p        = 0.5
)

// less defines the total order used throughout the index: higher score
// ranks first; ties are broken by user_id ascending. The header sentinel
// (empty user_id, never a real key) always compares less than any entry.
func less(aScore int64, aUserID string, bScore int64, bUserID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aUserID < bUserID
}

// lessOrEqual reports whether (aScore, aUserID) sorts at or before
// (bScore, bUserID) in the index's total order.
func lessOrEqual(aScore int64, aUserID string, bScore int64, bUserID string) bool {
	return less(aScore, aUserID, bScore, bUserID) || (aScore == bScore && aUserID == bUserID)
}

// node is a single skip list entry. forward and span are sized to the
// node's level at allocation time; there is no dynamic resize.
type node struct {
	userID  string
	score   int64
	forward []*node
	span    []int // span[i]: number of level-0 nodes skipped by forward[i]
}

// Row is a single leaderboard read result.
type Row struct {
	UserID string
	Score  int64
	Rank   int // 1-based, dense
}

// Index is the ranking index for one shard. It is safe for concurrent
// use only under the shard's own lock (see shard.Shard); Index itself
// performs no internal locking so callers can batch reads and writes
// under a single critical section when needed.
type Index struct {
	header *node
	level  int
	length int
	byUser map[string]*node
	rng    *rand.Rand
}

// Option configures an Index at construction time.
type Option func(*Index)

// WithSeed pins the random source used for level selection, making
// promotion decisions (and therefore node heights) reproducible. Useful
// for deterministic tests; production code should leave this unset.
func WithSeed(seed int64) Option {
	return func(ix *Index) {
		ix.rng = rand.New(rand.NewSource(seed))
	}
}

// New constructs an empty ranking index.
func New(opts ...Option) *Index {
	ix := &Index{
		header: &node{forward: make([]*node, maxLevel), span: make([]int, maxLevel)},
		level:  1,
		byUser: make(map[string]*node),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

func (ix *Index) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && ix.rng.Float64() < p {
		lvl++
	}
	return lvl
}

// Len returns the number of distinct users tracked by the index.
func (ix *Index) Len() int {
	return ix.length
}

// Upsert inserts a new user or repositions an existing one when the
// score changes. It reports whether the user was newly inserted (as
// opposed to updated in place or left unchanged because the score was
// identical). At most one node per user_id exists after this call.
func (ix *Index) Upsert(userID string, score int64) (inserted bool) {
	if old, ok := ix.byUser[userID]; ok {
		if old.score == score {
			return false // no-op: identical score, no reordering needed
		}
		ix.remove(old.score, userID)
	} else {
		inserted = true
	}

	n := ix.insert(userID, score)
	ix.byUser[userID] = n
	return inserted
}

// insert splices a new (userID, score) node into every level up to a
// randomly chosen height, following the standard Pugh skip-list
// insertion with rank bookkeeping for span maintenance.
func (ix *Index) insert(userID string, score int64) *node {
	update := make([]*node, maxLevel)
	rank := make([]int, maxLevel)

	x := ix.header
	for i := ix.level - 1; i >= 0; i-- {
		if i == ix.level-1 {
			rank[i] = 0
		} else {
			rank[i] = rank[i+1]
		}
		for x.forward[i] != nil && less(x.forward[i].score, x.forward[i].userID, score, userID) {
			rank[i] += x.span[i]
			x = x.forward[i]
		}
		update[i] = x
	}

	lvl := ix.randomLevel()
	if lvl > ix.level {
		for i := ix.level; i < lvl; i++ {
			rank[i] = 0
			update[i] = ix.header
			update[i].span[i] = ix.length
		}
		ix.level = lvl
	}

	n := &node{userID: userID, score: score, forward: make([]*node, lvl), span: make([]int, lvl)}
	for i := 0; i < lvl; i++ {
		n.forward[i] = update[i].forward[i]
		update[i].forward[i] = n
		n.span[i] = update[i].span[i] - (rank[0] - rank[i])
		update[i].span[i] = (rank[0] - rank[i]) + 1
	}
	for i := lvl; i < ix.level; i++ {
		update[i].span[i]++
	}

	ix.length++
	return n
}

// remove splices the node matching (score, userID) out of the skip
// list at every level it participates in, repairing spans as it goes.
func (ix *Index) remove(score int64, userID string) {
	update := make([]*node, maxLevel)

	x := ix.header
	for i := ix.level - 1; i >= 0; i-- {
		for x.forward[i] != nil && less(x.forward[i].score, x.forward[i].userID, score, userID) {
			x = x.forward[i]
		}
		update[i] = x
	}

	target := x.forward[0]
	if target == nil || target.score != score || target.userID != userID {
		return // not present; nothing to do
	}

	for i := 0; i < ix.level; i++ {
		if update[i].forward[i] == target {
			update[i].span[i] += target.span[i] - 1
			update[i].forward[i] = target.forward[i]
		} else {
			update[i].span[i]--
		}
	}
	for ix.level > 1 && ix.header.forward[ix.level-1] == nil {
		ix.level--
	}
	ix.length--
}

// TopK returns up to k rows in rank order starting at rank 1. When
// fewer than k users exist it returns all of them; it returns an empty
// slice, never an error, when k <= 0 or the index is empty.
func (ix *Index) TopK(k int) []Row {
	if k <= 0 {
		return []Row{}
	}
	limit := k
	if limit > ix.length {
		limit = ix.length
	}
	out := make([]Row, 0, limit)
	rank := 1
	for x := ix.header.forward[0]; x != nil && rank <= k; x = x.forward[0] {
		out = append(out, Row{UserID: x.userID, Score: x.score, Rank: rank})
		rank++
	}
	return out
}

// RankOf returns the 1-based rank of userID, walking the search path
// top-down and summing spans (O(log n) expected). The bool return is
// false when the user is unknown.
func (ix *Index) RankOf(userID string) (int, bool) {
	n, ok := ix.byUser[userID]
	if !ok {
		return 0, false
	}
	score := n.score

	x := ix.header
	rank := 0
	for i := ix.level - 1; i >= 0; i-- {
		for x.forward[i] != nil && lessOrEqual(x.forward[i].score, x.forward[i].userID, score, userID) {
			rank += x.span[i]
			x = x.forward[i]
		}
		if x.userID == userID && x.score == score {
			return rank, true
		}
	}
	return 0, false
}

// ScoreOf returns the current score for userID in O(1) via the side
// map. The bool return is false when the user is unknown.
func (ix *Index) ScoreOf(userID string) (int64, bool) {
	n, ok := ix.byUser[userID]
	if !ok {
		return 0, false
	}
	return n.score, true
}
