package leaderboard

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/leaderboard/entity"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/leaderboard/repo"
)

// Limit is the number of rows the public leaderboard shows.
const Limit = 100

type Service struct {
	repo   *repo.LeaderboardRepo
	logger *zap.SugaredLogger
}

func NewService(db *sqlx.DB, logger *zap.SugaredLogger) *Service {
	var r *repo.LeaderboardRepo
	if db != nil {
		r = repo.NewLeaderboardRepo(db)
	}
	return &Service{repo: r, logger: logger}
}

// Top returns the leaderboard. hasDB is false only when no datastore is
// bound; a failed read still reports true and yields an empty list.
func (s *Service) Top(ctx context.Context) (entries []entity.Entry, hasDB bool) {
	if s.repo == nil {
		return []entity.Entry{}, false
	}
	entries, err := s.repo.Top(ctx, Limit)
	if err != nil {
		s.logger.Warnw("leaderboard query failed", "err", err)
		return []entity.Entry{}, true
	}
	return entries, true
}
