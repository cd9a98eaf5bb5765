package loadgen

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const (
	scoreFloor = 1
	scoreRange = 1_000_000
)

// generateUserIDs produces n unique user identifiers.
func generateUserIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.New().String()
	}
	return ids
}

// generateScore produces a score drawn uniformly from
// [scoreFloor, scoreFloor+scoreRange), so successive submissions for the
// same user move it up and down the leaderboard.
func generateScore() int64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(scoreRange))
	return scoreFloor + n.Int64()
}
