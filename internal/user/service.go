package user

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/chain"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-turkey-coin/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/database"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/utilities"
)

// ListLimit caps the admin user listing.
const ListLimit = 500

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,24}$`)

// onboardInput is checked after trimming; the wallet is normalized separately.
type onboardInput struct {
	WalletAddress string `validate:"required,eth_addr"`
	Handle        string `validate:"required,handle"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
		return handlePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// UserService handles onboarding and the admin user listing. A nil repo
// means no datastore is bound.
type UserService struct {
	repo   *userrepo.UserRepo
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewUserService(db *sqlx.DB, logger *zap.SugaredLogger) *UserService {
	var r *userrepo.UserRepo
	if db != nil {
		r = userrepo.NewUserRepo(db)
	}
	return &UserService{repo: r, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Onboard records handle for walletAddress. Re-onboarding the same wallet
// replaces its handle; a handle held by another wallet is a conflict.
func (s *UserService) Onboard(ctx context.Context, walletAddress, handle string) (created bool, err error) {
	in := onboardInput{WalletAddress: strings.TrimSpace(walletAddress), Handle: strings.TrimSpace(handle)}
	if err := validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && fieldErrs[0].StructField() == "Handle" {
			return false, apperr.New(apperr.KindInvalidArgument, "invalid handle (3-24 chars: letters, digits, underscore)")
		}
		return false, apperr.New(apperr.KindInvalidArgument, "invalid wallet address")
	}
	wallet := strings.ToLower(in.WalletAddress)
	handle = in.Handle
	if s.repo == nil {
		return false, apperr.New(apperr.KindUnavailable, "datastore is not configured")
	}

	now := s.now()
	created, err = s.repo.Upsert(ctx, &entity.User{
		ID:            utilities.NewKSUID(),
		WalletAddress: wallet,
		Handle:        handle,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if errors.Is(err, userrepo.ErrHandleTaken) {
		return false, apperr.Wrap(apperr.KindConflict, "handle already taken", err)
	}
	if err != nil {
		return false, apperr.Wrap(apperr.KindUnavailable, "failed to save user", err)
	}
	s.logger.Infow("user onboarded", "wallet", wallet, "handle", handle, "created", created)
	return created, nil
}

// List returns onboarded users, newest first. Read failures degrade to an
// empty list.
func (s *UserService) List(ctx context.Context) ([]entity.ListView, database.StoreState) {
	if s.repo == nil {
		return []entity.ListView{}, database.StateUnconfigured
	}
	users, err := s.repo.List(ctx, ListLimit)
	if err != nil {
		s.logger.Warnw("list users failed", "err", err)
		return []entity.ListView{}, database.StateUnavailable
	}
	for i := range users {
		users[i].ChecksumAddress = chain.ChecksumAddress(users[i].WalletAddress)
	}
	return users, database.StateOK
}
