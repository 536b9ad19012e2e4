package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/parkgo/internal/domain"
	"github.com/kirinyoku/parkgo/internal/repository"
	"github.com/kirinyoku/parkgo/internal/service/inventory"
	"github.com/kirinyoku/parkgo/internal/uow"
)

const defaultPaymentMethod = "card"

type Config struct {
	// MaxDuration bounds end_time - start_time, extensions included.
	MaxDuration time.Duration
	Now         func() time.Time
}

// Intent is a payment intent opened for a reservation.
type Intent struct {
	ID           string
	ClientSecret string
}

// IntentOpener opens the payment intent of a freshly booked reservation.
// On error the returned Intent carries the provider id when one was opened.
type IntentOpener interface {
	OpenIntent(ctx context.Context, r domain.Reservation) (Intent, error)
}

type Service struct {
	store  repository.Store
	ledger *inventory.Service
	opener IntentOpener
	uow    *uow.UoW
	log    *slog.Logger
	cfg    Config
}

func New(
	store repository.Store,
	ledger *inventory.Service,
	log *slog.Logger,
	cfg Config,
) *Service {
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 7 * 24 * time.Hour
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:  store,
		ledger: ledger,
		uow:    uow.New(store, uow.Config{}),
		log:    log.With("component", "reservation"),
		cfg:    cfg,
	}
}

// SetIntentOpener attaches the payment side. Without one, bookings stay
// pending until paid out of band or expired by the sweeper.
func (s *Service) SetIntentOpener(o IntentOpener) {
	s.opener = o
}

type BookRequest struct {
	UserID     int64
	LocationID int64
	Start      time.Time
	End        time.Time
	// AmountCents is the price the client saw; zero accepts the server quote.
	AmountCents   int64
	PaymentMethod string
}

type Booking struct {
	Reservation  domain.Reservation
	ClientSecret string
}

// Book takes a spot and creates a pending reservation for it, then opens
// the payment intent.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: the requested window and location.
//
// Returns:
//   - *Booking: the pending reservation and the intent's client secret.
//   - error: reservation.ErrNoCapacity if the location is full.
//   - error: reservation.ErrAmountMismatch if the proposed amount is not the quote.
//   - error: reservation.ErrPaymentUnavailable if the intent could not be opened;
//     the reservation is cancelled and its spot returned.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Booking, error) {
	const op = "service.reservation.Book"

	now := s.cfg.Now()

	if err := s.validateWindow(req.Start, req.End, now); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	loc, err := s.store.Locations().Get(ctx, req.LocationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrLocationNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if !loc.Bookable() {
		return nil, fmt.Errorf("%s:%w", op, ErrLocationClosed)
	}

	quote, err := domain.Quote(loc.HourlyRateCents, loc.DailyRateCents, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidWindow)
	}

	if req.AmountCents != 0 && req.AmountCents != quote {
		return nil, fmt.Errorf("%s:%w", op, ErrAmountMismatch)
	}

	method := req.PaymentMethod
	if method == "" {
		method = defaultPaymentMethod
	}

	var res domain.Reservation

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Queries,
		after func(uow.AfterCommit),
	) error {
		hold, err := s.ledger.ReserveTx(ctx, tx, after, loc.ID)
		if err != nil {
			switch {
			case errors.Is(err, inventory.ErrNoCapacity):
				return ErrNoCapacity
			case errors.Is(err, inventory.ErrLocationNotFound):
				return ErrLocationNotFound
			}

			return err
		}

		res = domain.Reservation{
			ID:            uuid.New(),
			UserID:        req.UserID,
			LocationID:    loc.ID,
			HoldID:        hold.ID,
			StartTime:     req.Start,
			EndTime:       req.End,
			AmountCents:   quote,
			Currency:      loc.Currency,
			Status:        domain.StatusPending,
			PaymentStatus: domain.PaymentPending,
			PaymentMethod: method,
			CreatedAt:     now,
		}

		if err := tx.Reservations().Create(ctx, &res); err != nil {
			return err
		}

		return s.appendEvent(ctx, tx, domain.EventReservationCreated, res, "", now)
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	out := &Booking{Reservation: res}

	if s.opener == nil {
		return out, nil
	}

	intent, err := s.opener.OpenIntent(ctx, res)
	if err != nil {
		s.log.ErrorContext(ctx, "open payment intent failed, cancelling",
			"reservation_id", res.ID, "intent_id", intent.ID, "err", err)

		// The caller may already be gone; the spot must come back regardless.
		cctx := context.WithoutCancel(ctx)
		if _, cerr := s.Transition(cctx, res.ID, Change{
			To:            domain.StatusCancelled,
			PaymentStatus: domain.PaymentFailed,
			Reason:        "payment provider unavailable",
		}); cerr != nil {
			s.log.ErrorContext(ctx, "compensating cancel failed",
				"reservation_id", res.ID, "err", cerr)
		}

		return nil, fmt.Errorf("%s:%w", op, errors.Join(ErrPaymentUnavailable, err))
	}

	out.Reservation.PaymentIntentID = intent.ID
	out.ClientSecret = intent.ClientSecret

	return out, nil
}

// Get returns one of the user's reservations. A confirmed reservation whose
// window has started is activated on the way out.
func (s *Service) Get(ctx context.Context, userID int64, id uuid.UUID) (*domain.Reservation, error) {
	const op = "service.reservation.Get"

	res, err := s.load(ctx, s.store, userID, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	now := s.cfg.Now()
	if res.Status == domain.StatusConfirmed && !res.StartTime.After(now) && res.EndTime.After(now) {
		activated, err := s.Transition(ctx, id, Change{To: domain.StatusActive})
		switch {
		case err == nil:
			return activated, nil
		case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAlreadyTerminal):
			// Someone else moved it first; report what is stored now.
			return s.load(ctx, s.store, userID, id)
		default:
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	return res, nil
}

// List returns the user's reservations, newest first.
func (s *Service) List(ctx context.Context, userID int64, limit, offset int) ([]domain.Reservation, error) {
	const op = "service.reservation.List"

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	out, err := s.store.Reservations().ListByUser(ctx, userID, limit, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Cancel cancels one of the user's reservations. Cancelling a cancelled
// reservation returns it unchanged.
//
// Returns:
//   - *domain.Reservation: the reservation after the call.
//   - error: reservation.ErrReservationNotFound if it does not exist or
//     belongs to someone else.
//   - error: reservation.ErrAlreadyTerminal if it completed or expired.
func (s *Service) Cancel(ctx context.Context, userID int64, id uuid.UUID, reason string) (*domain.Reservation, error) {
	const op = "service.reservation.Cancel"

	if reason == "" {
		reason = "cancelled by user"
	}

	var out *domain.Reservation

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Queries,
		after func(uow.AfterCommit),
	) error {
		if _, err := s.load(ctx, tx, userID, id); err != nil {
			return err
		}

		res, _, err := s.TransitionTx(ctx, tx, after, id, Change{
			To:     domain.StatusCancelled,
			Reason: reason,
		})
		out = res
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Extend moves the end of a confirmed or active reservation later. The spot
// stays held and the price is not recomputed.
func (s *Service) Extend(ctx context.Context, userID int64, id uuid.UUID, newEnd time.Time) (*domain.Reservation, error) {
	const op = "service.reservation.Extend"

	now := s.cfg.Now()

	var out *domain.Reservation

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Queries,
		after func(uow.AfterCommit),
	) error {
		cur, err := s.load(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		if cur.Status != domain.StatusConfirmed && cur.Status != domain.StatusActive {
			return TransitionError{ID: id, From: cur.Status, To: cur.Status}
		}

		if !newEnd.After(cur.EndTime) || !newEnd.After(now) {
			return ErrInvalidExtension
		}

		if newEnd.Sub(cur.StartTime) > s.cfg.MaxDuration {
			return ErrDurationTooLong
		}

		res, err := tx.Reservations().Extend(ctx, id, []domain.Status{cur.Status}, newEnd, now)
		if err != nil {
			if errors.Is(err, repository.ErrStaleState) {
				return TransitionError{ID: id, From: cur.Status, To: cur.Status}
			}
			return err
		}

		out = res

		return s.appendEvent(ctx, tx, domain.EventReservationExtended, *res, "", now)
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Expire moves a pending reservation nobody paid for to expired. moved is
// false when it was already expired.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) (*domain.Reservation, bool, error) {
	return s.advance(ctx, id, Change{
		To:     domain.StatusExpired,
		Reason: "payment not received in time",
	})
}

// Activate marks a confirmed reservation whose window started as active.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) (*domain.Reservation, bool, error) {
	return s.advance(ctx, id, Change{To: domain.StatusActive})
}

// Complete closes a reservation whose window ended and returns its spot.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*domain.Reservation, bool, error) {
	return s.advance(ctx, id, Change{To: domain.StatusCompleted})
}

// Change is a requested status change. An empty PaymentStatus leaves the
// payment status as it is.
type Change struct {
	To            domain.Status
	PaymentStatus domain.PaymentStatus
	Reason        string
}

// Transition applies c in its own transaction.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, c Change) (*domain.Reservation, error) {
	res, _, err := s.advance(ctx, id, c)
	return res, err
}

func (s *Service) advance(ctx context.Context, id uuid.UUID, c Change) (*domain.Reservation, bool, error) {
	const op = "service.reservation.Transition"

	var (
		out   *domain.Reservation
		moved bool
	)

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Queries,
		after func(uow.AfterCommit),
	) error {
		res, changed, err := s.TransitionTx(ctx, tx, after, id, c)
		out, moved = res, changed
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("%s:%w", op, err)
	}

	return out, moved, nil
}

// TransitionTx applies c inside the caller's transaction. Leaving a status
// that owns inventory releases the hold in the same transaction, and the
// matching domain event is appended to the outbox.
//
// Requesting the status the reservation already has is a no-op: changed is
// false and nothing is released or emitted twice.
//
// Returns:
//   - *domain.Reservation: the reservation after the call.
//   - bool: whether the status changed.
//   - error: reservation.TransitionError if the edge is not allowed or a
//     concurrent change won the race.
func (s *Service) TransitionTx(
	ctx context.Context,
	tx repository.Queries,
	after func(uow.AfterCommit),
	id uuid.UUID,
	c Change,
) (*domain.Reservation, bool, error) {
	const op = "service.reservation.TransitionTx"

	cur, err := tx.Reservations().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, fmt.Errorf("%s:%w", op, ErrReservationNotFound)
		}

		return nil, false, fmt.Errorf("%s:%w", op, err)
	}

	if cur.Status == c.To {
		return cur, false, nil
	}

	if !domain.CanTransition(cur.Status, c.To) {
		return nil, false, fmt.Errorf("%s:%w", op, TransitionError{ID: id, From: cur.Status, To: c.To})
	}

	now := s.cfg.Now()

	res, err := tx.Reservations().Transition(ctx, id, domain.Transition{
		From:          []domain.Status{cur.Status},
		To:            c.To,
		PaymentStatus: c.PaymentStatus,
		Reason:        c.Reason,
		At:            now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, false, fmt.Errorf("%s:%w", op, TransitionError{ID: id, From: cur.Status, To: c.To})
		}

		return nil, false, fmt.Errorf("%s:%w", op, err)
	}

	if cur.Status.HoldsInventory() && !c.To.HoldsInventory() {
		if _, err := s.ledger.ReleaseTx(ctx, tx, after, res.HoldID); err != nil {
			return nil, false, fmt.Errorf("%s:%w", op, err)
		}
	}

	if err := s.appendEvent(ctx, tx, domain.EventForStatus(c.To), *res, c.Reason, now); err != nil {
		return nil, false, fmt.Errorf("%s:%w", op, err)
	}

	s.log.InfoContext(ctx, "reservation transition",
		"reservation_id", id, "from", cur.Status, "to", c.To)

	return res, true, nil
}

func (s *Service) validateWindow(start, end, now time.Time) error {
	if !end.After(start) {
		return ErrInvalidWindow
	}

	if !end.After(now) {
		return ErrWindowInPast
	}

	if end.Sub(start) > s.cfg.MaxDuration {
		return ErrDurationTooLong
	}

	return nil
}

// load fetches a reservation owned by userID. Someone else's reservation is
// reported as not found.
func (s *Service) load(ctx context.Context, q repository.Queries, userID int64, id uuid.UUID) (*domain.Reservation, error) {
	res, err := q.Reservations().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReservationNotFound
		}

		return nil, err
	}

	if res.UserID != userID {
		return nil, ErrReservationNotFound
	}

	return res, nil
}

func (s *Service) appendEvent(
	ctx context.Context,
	tx repository.Queries,
	t domain.EventType,
	r domain.Reservation,
	reason string,
	at time.Time,
) error {
	ev, err := domain.NewReservationEvent(t, r, reason, at)
	if err != nil {
		return err
	}

	return tx.Outbox().Append(ctx, ev)
}
