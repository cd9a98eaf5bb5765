package shard

import (
	"github.com/okian/leaderboard/internal/domain/wal"
	"github.com/okian/leaderboard/pkg/logger"
)

// Option configures a Shard at construction time.
type Option func(*Shard)

// WithScoreRange bounds accepted scores to [min, max]. A submission
// outside the range is rejected with ErrInvalidInput before it reaches
// the write-ahead log. The zero value (min == max == 0) disables the
// check.
func WithScoreRange(minScore, maxScore int64) Option {
	return func(s *Shard) {
		if minScore != 0 || maxScore != 0 {
			s.scoreMin = minScore
			s.scoreMax = maxScore
			s.rangeChecked = true
		}
	}
}

// WithWALOptions passes through options to the underlying write-ahead
// log at Open time.
func WithWALOptions(opts ...wal.Option) Option {
	return func(s *Shard) {
		s.walOpts = append(s.walOpts, opts...)
	}
}

// WithLogger attaches a logger for shard-level recovery and lifecycle
// events.
func WithLogger(l logger.Logger) Option {
	return func(s *Shard) {
		if l != nil {
			s.logger = l
		}
	}
}
