package router

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	leaderboardrepo "github.com/ovaphlow/pitchfork/service-turkey-coin/internal/leaderboard/repo"
	mintrepo "github.com/ovaphlow/pitchfork/service-turkey-coin/internal/mint/repo"
	userrepo "github.com/ovaphlow/pitchfork/service-turkey-coin/internal/user/repo"
)

// EnsureSchema creates every table the routes read or write. users must exist
// before balance_cache is joined against it.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"users", userrepo.NewUserRepo(db).EnsureTable},
		{"balance_cache", leaderboardrepo.NewLeaderboardRepo(db).EnsureTable},
		{"mint_events", mintrepo.NewMintRepo(db).EnsureTable},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("ensure %s table: %w", s.name, err)
		}
	}
	return nil
}
