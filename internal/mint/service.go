package mint

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/auth"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/chain"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/mint/entity"
	mintrepo "github.com/ovaphlow/pitchfork/service-turkey-coin/internal/mint/repo"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/database"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/utilities"
)

const (
	MinAmount = 1
	MaxAmount = 1000

	DefaultReason    = "manual reward"
	MaxReasonLen     = 120
	MinIdemKeyLen    = 8
	MaxIdemKeyLen    = 128
	MaxFailureReason = 500

	DefaultListLimit = 50
	MaxListLimit     = 200

	requeueNote       = "Requeued by admin manual override"
	requeueNotePrefix = "Requeued by admin: "
)

var errNoStore = apperr.New(apperr.KindUnavailable, "datastore is not configured")

// CreateInput is an admin request to queue a mint. Amount is the decimal
// literal as received so non-integer values can be rejected.
type CreateInput struct {
	WalletAddress  string
	Amount         string
	Reason         string
	IdempotencyKey string
}

// TransitionInput moves an event to Status. TxHash and FailureReason are
// required or forbidden depending on the transition.
type TransitionInput struct {
	EventID        string
	Status         string
	TxHash         string
	FailureReason  string
	ManualOverride bool
}

// ListInput holds raw listing filters. Limit <= 0 means default.
type ListInput struct {
	Status         string
	ToWallet       string
	IdempotencyKey string
	Limit          int
}

// Service owns creation, querying and guarded transitions of mint events.
// A nil repo means no datastore is bound.
type Service struct {
	repo    *mintrepo.MintRepo
	chainID int64
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewService(db *sqlx.DB, chainID int64, logger *zap.SugaredLogger) *Service {
	var r *mintrepo.MintRepo
	if db != nil {
		r = mintrepo.NewMintRepo(db)
	}
	return &Service{repo: r, chainID: chainID, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Create validates in and queues a new mint event requested by who.
func (s *Service) Create(ctx context.Context, in CreateInput, who auth.Identity) (*entity.MintEvent, error) {
	wallet, ok := chain.NormalizeWallet(in.WalletAddress)
	if !ok {
		return nil, apperr.New(apperr.KindInvalidArgument, "invalid wallet address")
	}
	amount, err := parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) < MinIdemKeyLen {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "idempotencyKey is required (min %d chars)", MinIdemKeyLen)
	}
	if len(key) > MaxIdemKeyLen {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "idempotencyKey must be at most %d chars", MaxIdemKeyLen)
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = DefaultReason
	}
	if utf8.RuneCountInString(reason) > MaxReasonLen {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "reason must be at most %d chars", MaxReasonLen)
	}
	if s.repo == nil {
		return nil, errNoStore
	}

	ev := &entity.MintEvent{
		ID:               utilities.NewUUID(),
		ToWallet:         wallet,
		AmountRaw:        strconv.FormatInt(amount, 10),
		ChainID:          s.chainID,
		Status:           entity.StatusQueued,
		Reason:           reason,
		IdempotencyKey:   key,
		RequestedBySub:   optional(who.Subject),
		RequestedByEmail: optional(who.Email),
		CreatedAt:        s.now(),
	}
	if err := s.repo.Create(ctx, ev); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, "mint already requested for this idempotencyKey", err)
		}
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to queue mint event", err)
	}
	metrics.MintEventsCreated.Inc()
	s.logger.Infow("mint event queued",
		"event_id", ev.ID,
		"to_wallet", ev.ToWallet,
		"amount", ev.AmountRaw,
		"requested_by", who.Subject,
	)
	return ev, nil
}

// parseAmount accepts a base-10 integer literal within [MinAmount, MaxAmount].
func parseAmount(raw string) (int64, error) {
	bad := apperr.Newf(apperr.KindInvalidArgument, "amount must be an integer between %d and %d", MinAmount, MaxAmount)
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < MinAmount || n > MaxAmount {
		return 0, bad
	}
	return n, nil
}

// List returns events matching the filters, newest first. Invalid filters are
// rejected; read failures degrade to an empty list with a StoreState saying
// why.
func (s *Service) List(ctx context.Context, in ListInput) ([]entity.MintEvent, database.StoreState, error) {
	var f entity.Filter
	if raw := strings.ToLower(strings.TrimSpace(in.Status)); raw != "" {
		st, ok := entity.ParseStatus(raw)
		if !ok {
			return nil, "", apperr.New(apperr.KindInvalidArgument, "status filter must be queued|submitted|confirmed|failed")
		}
		f.Status = st
	}
	if raw := strings.TrimSpace(in.ToWallet); raw != "" {
		w, ok := chain.NormalizeWallet(raw)
		if !ok {
			return nil, "", apperr.New(apperr.KindInvalidArgument, "to_wallet filter must be a valid address")
		}
		f.ToWallet = w
	}
	f.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	f.Limit = ClampLimit(in.Limit)

	if s.repo == nil {
		return []entity.MintEvent{}, database.StateUnconfigured, nil
	}
	events, err := s.repo.List(ctx, f)
	if err != nil {
		s.logger.Warnw("list mint events failed", "err", err)
		return []entity.MintEvent{}, database.StateUnavailable, nil
	}
	return events, database.StateOK, nil
}

// ClampLimit applies the default for zero and clamps into [1, MaxListLimit].
func ClampLimit(n int) int {
	switch {
	case n == 0:
		return DefaultListLimit
	case n < 1:
		return 1
	case n > MaxListLimit:
		return MaxListLimit
	default:
		return n
	}
}

// Get returns a single event by id.
func (s *Service) Get(ctx context.Context, id string) (*entity.MintEvent, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "eventId is required")
	}
	if s.repo == nil {
		return nil, errNoStore
	}
	ev, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, mintrepo.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "mint event not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to load mint event", err)
	}
	return ev, nil
}

// Transition applies a status change following the transition matrix.
func (s *Service) Transition(ctx context.Context, in TransitionInput) (*entity.MintEvent, error) {
	id := strings.TrimSpace(in.EventID)
	if id == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "eventId is required")
	}
	next, ok := entity.ParseStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	if !ok {
		return nil, apperr.New(apperr.KindInvalidArgument, "status must be queued|submitted|confirmed|failed")
	}
	txHash := strings.TrimSpace(in.TxHash)
	if txHash != "" && !chain.IsTxHash(txHash) {
		return nil, apperr.New(apperr.KindInvalidArgument, "txHash must be a valid 0x-prefixed hash")
	}
	if txHash != "" && next != entity.StatusSubmitted {
		return nil, apperr.New(apperr.KindInvalidArgument, "txHash can only be provided when setting submitted status")
	}
	reason := strings.TrimSpace(in.FailureReason)
	if utf8.RuneCountInString(reason) > MaxFailureReason {
		return nil, apperr.Newf(apperr.KindInvalidArgument, "failureReason must be at most %d chars", MaxFailureReason)
	}
	if s.repo == nil {
		return nil, errNoStore
	}

	now := s.now()
	var from entity.Status
	ev, err := s.repo.ApplyTransition(ctx, id, func(ev *entity.MintEvent) error {
		from = ev.Status
		return applyTransition(ev, next, strings.ToLower(txHash), reason, in.ManualOverride, now)
	})
	switch {
	case err == nil:
	case errors.Is(err, mintrepo.ErrNotFound):
		return nil, apperr.New(apperr.KindNotFound, "mint event not found")
	case errors.Is(err, mintrepo.ErrStaleStatus):
		return nil, apperr.Wrap(apperr.KindConflict, "mint event was updated concurrently; reload and retry", err)
	default:
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, apperr.Wrap(apperr.KindUnavailable, "failed to update mint event", err)
	}

	metrics.MintTransitions.WithLabelValues(string(from), string(next)).Inc()
	s.logger.Infow("mint event transitioned",
		"event_id", id,
		"from", from,
		"to", next,
		"manual_override", in.ManualOverride,
	)
	return ev, nil
}

// applyTransition mutates ev into its next state or explains why it cannot.
func applyTransition(ev *entity.MintEvent, next entity.Status, txHash, reason string, manual bool, now time.Time) error {
	from := ev.Status
	switch {
	case from == entity.StatusQueued && next == entity.StatusSubmitted:
		if txHash == "" {
			return apperr.New(apperr.KindInvalidArgument, "queued -> submitted requires txHash")
		}
		ev.TxHash = &txHash
		ev.SubmittedAt = &now
		ev.FailedAt = nil
		ev.FailureReason = nil

	case from == entity.StatusSubmitted && next == entity.StatusConfirmed:
		if ev.TxHash == nil || *ev.TxHash == "" {
			return apperr.New(apperr.KindInvalidArgument, "submitted -> confirmed requires txHash already present")
		}
		ev.ConfirmedAt = &now
		ev.FailedAt = nil
		ev.FailureReason = nil

	case (from == entity.StatusQueued || from == entity.StatusSubmitted) && next == entity.StatusFailed:
		if reason == "" {
			return apperr.Newf(apperr.KindInvalidArgument, "%s -> failed requires failureReason", from)
		}
		// txHash is kept so a failed submission stays auditable
		ev.FailedAt = &now
		ev.FailureReason = &reason

	case from == entity.StatusFailed && next == entity.StatusQueued:
		if !manual {
			return apperr.New(apperr.KindInvalidTransition, "invalid transition failed -> queued: only allowed with manualOverride=true")
		}
		note := requeueNote
		if reason != "" {
			note = requeueNotePrefix + reason
		}
		ev.FailedAt = nil
		ev.FailureReason = &note

	default:
		return apperr.Newf(apperr.KindInvalidTransition, "invalid transition %s -> %s", from, next)
	}
	ev.Status = next
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
