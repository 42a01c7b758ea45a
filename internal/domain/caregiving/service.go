package caregiving

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careclaims/careclaims/internal/platform/auth"
	"github.com/careclaims/careclaims/internal/platform/events"
	"github.com/careclaims/careclaims/pkg/modification"
)

// ProceedingAction is the round operation that leads to a progressing status.
type ProceedingAction string

const (
	ActionStart                   ProceedingAction = "START"
	ActionStop                    ProceedingAction = "STOP"
	ActionFinish                  ProceedingAction = "FINISH"
	ActionCancel                  ProceedingAction = "CANCEL"
	ActionPending                 ProceedingAction = "PENDING"
	ActionRematching              ProceedingAction = "REMATCHING"
	ActionReconciliationCompleted ProceedingAction = "RECONCILIATION_COMPLETED"
)

// ProceedingActionFor maps a target status to the action reaching it.
// NOT_STARTED cannot be reached and yields ErrNoProceedingAction.
func ProceedingActionFor(status ProgressingStatus) (ProceedingAction, error) {
	switch status {
	case StatusInProgress:
		return ActionStart, nil
	case StatusCompletedRestarting:
		return ActionStop, nil
	case StatusCompleted, StatusCompletedUsingPersonalCaregiver:
		return ActionFinish, nil
	case StatusCanceledWhileRematching:
		return ActionCancel, nil
	case StatusPendingRematching:
		return ActionPending, nil
	case StatusRematching:
		return ActionRematching, nil
	case StatusReconciliationCompleted:
		return ActionReconciliationCompleted, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoProceedingAction, status)
}

// EditRoundCommand edits a round. Unset patches leave fields alone; an empty
// ProgressingStatus or one equal to the current status requests no action.
type EditRoundCommand struct {
	CaregiverInfo       modification.Patch[CaregiverInfo]
	ProgressingStatus   ProgressingStatus
	StartDateTime       modification.Patch[time.Time]
	EndDateTime         modification.Patch[time.Time]
	ClosingReasonType   ClosingReasonType
	DetailClosingReason string
	Remarks             string
}

// RoundWithReception pairs a round with the live reception it belongs to.
type RoundWithReception struct {
	Round     *CaregivingRound
	Reception *Reception
}

// Subscriber registers event handlers.
type Subscriber interface {
	Subscribe(name string, h events.Handler)
}

type Service struct {
	rounds     RoundRepository
	charges    ChargeRepository
	receptions ReceptionRepository
	tx         TxRunner
	publisher  events.Publisher
	policy     auth.Policy
	now        func() time.Time
	logger     zerolog.Logger
}

func NewService(rounds RoundRepository, charges ChargeRepository, receptions ReceptionRepository,
	tx TxRunner, publisher events.Publisher, policy auth.Policy) *Service {
	return &Service{
		rounds:     rounds,
		charges:    charges,
		receptions: receptions,
		tx:         tx,
		publisher:  publisher,
		policy:     policy,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
}

// SetClock replaces the time source used to stamp events.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

func (s *Service) actor(subject auth.Subject) Actor {
	return Actor{Subject: subject, At: s.now().UTC(), Policy: s.policy}
}

func (s *Service) check(subject auth.Subject, action auth.Action, object auth.ScopedObject) error {
	if s.policy == nil {
		return nil
	}
	return s.policy.Check(subject, action, object)
}

// -- Queries --

func (s *Service) GetCaregivingRound(ctx context.Context, subject auth.Subject, id uuid.UUID) (*CaregivingRound, error) {
	round, err := s.rounds.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(subject, auth.ActionRead, round); err != nil {
		return nil, err
	}
	return round, nil
}

// GetCaregivingRoundsByReceptionID checks read access on every returned round.
func (s *Service) GetCaregivingRoundsByReceptionID(ctx context.Context, subject auth.Subject, receptionID uuid.UUID) ([]*CaregivingRound, error) {
	rounds, err := s.rounds.ListByReceptionID(ctx, receptionID)
	if err != nil {
		return nil, err
	}
	for _, round := range rounds {
		if err := s.check(subject, auth.ActionRead, round); err != nil {
			return nil, err
		}
	}
	return rounds, nil
}

func (s *Service) GetCaregivingRoundsByIDs(ctx context.Context, subject auth.Subject, ids []uuid.UUID) ([]*CaregivingRound, error) {
	rounds, err := s.rounds.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, round := range rounds {
		if err := s.check(subject, auth.ActionRead, round); err != nil {
			return nil, err
		}
	}
	return rounds, nil
}

func (s *Service) GetCaregivingCharge(ctx context.Context, subject auth.Subject, roundID uuid.UUID) (*CaregivingCharge, error) {
	charge, err := s.charges.GetByRoundID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if err := s.check(subject, auth.ActionRead, charge); err != nil {
		return nil, err
	}
	return charge, nil
}

// SearchCaregivingRounds searches rounds and attaches their receptions.
// Organization users only see rounds their organization manages.
func (s *Service) SearchCaregivingRounds(ctx context.Context, subject auth.Subject, criteria SearchCriteria, limit, offset int) ([]RoundWithReception, int, error) {
	if subject.HasRole(auth.RoleOrganizationUser) && !subject.HasRole(auth.RoleAdmin) && !subject.HasRole(auth.RoleInternalUser) {
		criteria.ScopeOrganizationID = subject.OrganizationID
	}
	rounds, total, err := s.rounds.Search(ctx, criteria, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]uuid.UUID, 0, len(rounds))
	seen := make(map[uuid.UUID]bool)
	for _, r := range rounds {
		if !seen[r.ReceptionID()] {
			seen[r.ReceptionID()] = true
			ids = append(ids, r.ReceptionID())
		}
	}
	receptions, err := s.receptions.GetReceptions(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[uuid.UUID]*Reception, len(receptions))
	for _, rec := range receptions {
		byID[rec.ID] = rec
	}

	out := make([]RoundWithReception, 0, len(rounds))
	for _, r := range rounds {
		if err := s.check(subject, auth.ActionRead, r); err != nil {
			return nil, 0, err
		}
		out = append(out, RoundWithReception{Round: r, Reception: byID[r.ReceptionID()]})
	}
	return out, total, nil
}

// -- Commands --

// roundChange is what one unit of work produced: rounds to update or
// create, charges to save, and the events they raised.
type roundChange struct {
	updated []*CaregivingRound
	created []*CaregivingRound
	charges []*CaregivingCharge
	extra   []events.Event
}

// persist writes the change inside the current transaction and returns the
// events to publish once it commits.
func (s *Service) persist(ctx context.Context, ch *roundChange) ([]events.Event, error) {
	var out []events.Event
	for _, r := range ch.updated {
		if err := s.rounds.Update(ctx, r); err != nil {
			return nil, err
		}
		out = append(out, r.PullEvents()...)
	}
	for _, r := range ch.created {
		if err := s.rounds.Create(ctx, r); err != nil {
			return nil, err
		}
		out = append(out, r.PullEvents()...)
	}
	for _, c := range ch.charges {
		if err := s.charges.Save(ctx, c); err != nil {
			return nil, err
		}
		out = append(out, c.PullEvents()...)
	}
	return append(out, ch.extra...), nil
}

// unitOfWork runs fn in a transaction, persists what it changed and
// publishes the raised events after commit. Delivery is at most once: the
// change is already saved, so a failing subscriber is logged and does not
// fail the command.
func (s *Service) unitOfWork(ctx context.Context, fn func(ctx context.Context, ch *roundChange) error) error {
	var pending []events.Event
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ch := &roundChange{}
		if err := fn(ctx, ch); err != nil {
			return err
		}
		evs, err := s.persist(ctx, ch)
		if err != nil {
			return err
		}
		pending = evs
		return nil
	})
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	if err := s.publisher.Publish(ctx, pending...); err != nil {
		s.logger.Error().Err(err).Int("events", len(pending)).Msg("publish caregiving events after commit")
	}
	return nil
}

// modifyRound loads a round, applies fn and persists the round plus any
// successor it returns.
func (s *Service) modifyRound(ctx context.Context, subject auth.Subject, id uuid.UUID,
	fn func(r *CaregivingRound, actor Actor) (*CaregivingRound, error)) (*CaregivingRound, error) {
	var successor *CaregivingRound
	err := s.unitOfWork(ctx, func(ctx context.Context, ch *roundChange) error {
		r, err := s.rounds.GetByID(ctx, id)
		if err != nil {
			return err
		}
		next, err := fn(r, s.actor(subject))
		if err != nil {
			return err
		}
		successor = next
		ch.updated = append(ch.updated, r)
		if next != nil {
			ch.created = append(ch.created, next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return successor, nil
}

func (s *Service) AssignCaregiver(ctx context.Context, subject auth.Subject, roundID uuid.UUID, info CaregiverInfo) error {
	_, err := s.modifyRound(ctx, subject, roundID, func(r *CaregivingRound, actor Actor) (*CaregivingRound, error) {
		return nil, r.AssignCaregiver(info, actor)
	})
	return err
}

func (s *Service) StartCaregiving(ctx context.Context, subject auth.Subject, roundID uuid.UUID, at time.Time) error {
	_, err := s.modifyRound(ctx, subject, roundID, func(r *CaregivingRound, actor Actor) (*CaregivingRound, error) {
		return nil, r.StartCaregiving(at, actor)
	})
	return err
}

func (s *Service) StopCaregiving(ctx context.Context, subject auth.Subject, roundID uuid.UUID, at time.Time) error {
	_, err := s.modifyRound(ctx, subject, roundID, func(r *CaregivingRound, actor Actor) (*CaregivingRound, error) {
		return nil, r.Stop(at, actor)
	})
	return err
}

// FinishCaregiving finishes the round and returns the successor round the
// reason created, or nil.
func (s *Service) FinishCaregiving(ctx context.Context, subject auth.Subject, roundID uuid.UUID, end time.Time, reason ClosingReasonType) (*CaregivingRound, error) {
	return s.modifyRound(ctx, subject, roundID, func(r *CaregivingRound, actor Actor) (*CaregivingRound, error) {
		res, err := r.Finish(end, reason, actor)
		return res.Successor, err
	})
}

func (s *Service) CancelCaregiving(ctx context.Context, subject auth.Subject, roundID uuid.UUID, reason ClosingReasonType, detail string) error {
	_, err := s.modifyRound(ctx, subject, roundID, func(r *CaregivingRound, actor Actor) (*CaregivingRound, error) {
		return nil, r.Cancel(reason, detail, actor)
	})
	return err
}

func (s *Service) PendCaregiving(ctx context.Context, subject auth.Subject, roundID uuid.UUID) error {
	_, err := s.modifyRound(ctx, subject, roundID, func(r *CaregivingRound, actor Actor) (*CaregivingRound, error) {
		return nil, r.Pend(actor)
	})
	return err
}

// EditCaregivingRound applies the caregiver, the status-driven action, the
// period and the remarks, in that order. It returns the successor round a
// finishing action created, or nil.
func (s *Service) EditCaregivingRound(ctx context.Context, subject auth.Subject, roundID uuid.UUID, cmd EditRoundCommand) (*CaregivingRound, error) {
	return s.modifyRound(ctx, subject, roundID, func(r *CaregivingRound, actor Actor) (*CaregivingRound, error) {
		if info, ok := cmd.CaregiverInfo.Value(); ok {
			if err := r.AssignCaregiver(info, actor); err != nil {
				return nil, err
			}
		}

		var successor *CaregivingRound
		if cmd.ProgressingStatus != "" && cmd.ProgressingStatus != r.Status() {
			action, err := ProceedingActionFor(cmd.ProgressingStatus)
			switch {
			case errors.Is(err, ErrNoProceedingAction):
				s.logger.Debug().
					Str("caregiving_round_id", roundID.String()).
					Str("progressing_status", string(cmd.ProgressingStatus)).
					Msg("no proceeding action for requested status")
			case err != nil:
				return nil, err
			default:
				successor, err = s.proceed(r, action, cmd, actor)
				if err != nil {
					return nil, err
				}
			}
		}

		if err := applyPeriod(r, cmd.StartDateTime, cmd.EndDateTime, actor); err != nil {
			return nil, err
		}
		if err := r.UpdateRemarks(cmd.Remarks, actor); err != nil {
			return nil, err
		}
		return successor, nil
	})
}

func (s *Service) proceed(r *CaregivingRound, action ProceedingAction, cmd EditRoundCommand, actor Actor) (*CaregivingRound, error) {
	data := r.StateData()
	startAt := cmd.StartDateTime.Apply(actor.At)
	endAt := cmd.EndDateTime.Apply(actor.At)

	switch action {
	case ActionStart:
		return nil, r.StartCaregiving(startAt, actor)
	case ActionStop:
		return nil, r.Stop(endAt, actor)
	case ActionFinish:
		reason := cmd.ClosingReasonType
		if reason == "" {
			reason = ReasonFinished
			if cmd.ProgressingStatus == StatusCompletedUsingPersonalCaregiver {
				reason = ReasonFinishedUsingPersonalCaregiver
			}
		}
		if reason.IsFinishingReason() && reason.completedStatus() != cmd.ProgressingStatus {
			return nil, &InvalidClosingReasonError{Reason: reason, Transition: "finish as " + string(cmd.ProgressingStatus)}
		}
		if !cmd.EndDateTime.IsSet() && data.EndDateTime != nil {
			endAt = *data.EndDateTime
		}
		res, err := r.Finish(endAt, reason, actor)
		return res.Successor, err
	case ActionCancel:
		reason := cmd.ClosingReasonType
		if reason == "" {
			reason = ReasonCanceledWhileRematching
		}
		return nil, r.Cancel(reason, cmd.DetailClosingReason, actor)
	case ActionPending:
		return nil, r.Pend(actor)
	case ActionRematching:
		return nil, r.Rematch(actor)
	case ActionReconciliationCompleted:
		return nil, r.CompleteReconciliation(actor)
	}
	return nil, fmt.Errorf("unsupported proceeding action %s", action)
}

// applyPeriod applies start and end edits that differ from the round's
// values. When the new start lies after the current end, the end moves first
// so the period stays valid in between.
func applyPeriod(r *CaregivingRound, start, end modification.Patch[time.Time], actor Actor) error {
	data := r.StateData()
	newStart, startSet := start.Value()
	newEnd, endSet := end.Value()
	startSet = startSet && !sameTime(data.StartDateTime, newStart)
	endSet = endSet && !sameTime(data.EndDateTime, newEnd)

	editStart := func() error {
		if !startSet {
			return nil
		}
		return r.EditCaregivingStartDateTime(newStart, actor)
	}
	editEnd := func() error {
		if !endSet {
			return nil
		}
		return r.EditCaregivingEndDateTime(newEnd, actor)
	}

	first, second := editStart, editEnd
	if startSet && endSet && data.EndDateTime != nil && newStart.After(*data.EndDateTime) {
		first, second = editEnd, editStart
	}
	if err := first(); err != nil {
		return err
	}
	return second()
}

func sameTime(current *time.Time, t time.Time) bool {
	return current != nil && current.Equal(t)
}

// CreateOrEditCaregivingCharge edits the round's charge, creating it first
// when the round is chargeable and has none yet.
func (s *Service) CreateOrEditCaregivingCharge(ctx context.Context, subject auth.Subject, roundID uuid.UUID, edit ChargeEdit) (*CaregivingCharge, error) {
	var result *CaregivingCharge
	err := s.unitOfWork(ctx, func(ctx context.Context, ch *roundChange) error {
		actor := s.actor(subject)
		charge, err := s.charges.GetByRoundID(ctx, roundID)
		var notFound *ChargeNotFoundError
		switch {
		case errors.As(err, &notFound):
			charge, err = s.newCharge(ctx, roundID, edit, actor)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if !charge.ConfirmStatus().IsEditable() {
				return &ChargeEditingDeniedError{RoundID: roundID, ConfirmStatus: charge.ConfirmStatus()}
			}
			if err := charge.Edit(edit, actor); err != nil {
				return err
			}
		}
		ch.charges = append(ch.charges, charge)
		result = charge
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) newCharge(ctx context.Context, roundID uuid.UUID, edit ChargeEdit, actor Actor) (*CaregivingCharge, error) {
	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if !round.Status().IsChargeable() {
		return nil, &InvalidActionableStatusError{RoundID: roundID, Status: round.Status()}
	}
	data := round.StateData()
	if data.CaregiverInfo == nil || data.StartDateTime == nil || data.EndDateTime == nil {
		return nil, &UnknownRoundInfoError{RoundID: roundID}
	}
	info := ChargeRoundInfo{
		RoundID:               round.ID(),
		RoundNumber:           round.Number(),
		StartDateTime:         *data.StartDateTime,
		EndDateTime:           *data.EndDateTime,
		DailyCaregivingCharge: data.CaregiverInfo.DailyCaregivingCharge,
		ReceptionID:           round.ReceptionID(),
	}
	return NewCaregivingCharge(info, edit, round.ManagingOrganizationID(), actor)
}

// -- Event reactions --

// Subscribe registers the service's reactions to inbound events.
func (s *Service) Subscribe(sub Subscriber) {
	sub.Subscribe(EventReceptionModified, reaction(s.HandleReceptionModified))
	sub.Subscribe(EventBillingModified, reaction(s.HandleBillingModified))
	sub.Subscribe(EventBillingGenerated, reaction(s.HandleBillingGenerated))
	sub.Subscribe(EventSettlementModified, reaction(s.HandleSettlementModified))
	sub.Subscribe(EventSettlementGenerated, reaction(s.HandleSettlementGenerated))
	sub.Subscribe(EventReconciliationClosed, reaction(s.HandleReconciliationClosed))
}

func reaction[E events.Event](fn func(context.Context, E) error) events.Handler {
	return func(ctx context.Context, ev events.Event) error {
		e, ok := ev.(E)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", ev, ev.EventName())
		}
		return fn(ctx, e)
	}
}

func (s *Service) systemActor() Actor {
	return s.actor(auth.SystemSubject())
}

// HandleReceptionModified projects the reception and refreshes its rounds
// and charges. The first round is created once a caregiving manager is
// assigned to a reception without rounds.
func (s *Service) HandleReceptionModified(ctx context.Context, ev ReceptionModified) error {
	return s.unitOfWork(ctx, func(ctx context.Context, ch *roundChange) error {
		current, err := s.receptions.GetReception(ctx, ev.ReceptionID)
		if err != nil && !is[*ReceptionNotFoundError](err) {
			return err
		}
		if err := s.receptions.Save(ctx, receptionFromEvent(ev, current)); err != nil {
			return err
		}

		rounds, err := s.rounds.ListByReceptionID(ctx, ev.ReceptionID)
		if err != nil {
			return err
		}
		actor := s.systemActor()
		if len(rounds) == 0 {
			if ev.CaregivingManagerInfo == nil {
				return nil
			}
			first := NewCaregivingRound(1, ReceptionInfo{ReceptionID: ev.ReceptionID})
			if err := first.HandleReceptionModified(ev, actor); err != nil {
				return err
			}
			ch.created = append(ch.created, first)
			return nil
		}

		for _, r := range rounds {
			if err := r.HandleReceptionModified(ev, actor); err != nil {
				return err
			}
			ch.updated = append(ch.updated, r)
		}
		charges, err := s.charges.ListByReceptionID(ctx, ev.ReceptionID)
		if err != nil {
			return err
		}
		for _, c := range charges {
			c.HandleReceptionModified(ev)
			ch.charges = append(ch.charges, c)
		}
		return nil
	})
}

// receptionFromEvent projects the event onto the read model. Like rounds and
// charges, the reception keeps its current manager when the event has none.
func receptionFromEvent(ev ReceptionModified, current *Reception) *Reception {
	rec := &Reception{
		ID:                ev.ReceptionID,
		InsuranceNumber:   ev.InsuranceNumber,
		AccidentNumber:    ev.AccidentNumber,
		MaskedPatientName: ev.MaskedPatientName,
		HospitalName:      ev.HospitalName,
		ProgressingStatus: ev.ProgressingStatus.Current,
	}
	switch {
	case ev.CaregivingManagerInfo != nil:
		m := *ev.CaregivingManagerInfo
		rec.CaregivingManagerInfo = &m
	case current != nil && current.CaregivingManagerInfo != nil:
		m := *current.CaregivingManagerInfo
		rec.CaregivingManagerInfo = &m
	}
	return rec
}

// reactOnRound loads the event's round and applies fn when affects reports
// the round would change.
func (s *Service) reactOnRound(ctx context.Context, roundID uuid.UUID, affects func(*CaregivingRound) bool,
	fn func(*CaregivingRound, Actor) error) error {
	return s.unitOfWork(ctx, func(ctx context.Context, ch *roundChange) error {
		r, err := s.rounds.GetByID(ctx, roundID)
		if err != nil {
			return err
		}
		if !affects(r) {
			return nil
		}
		if err := fn(r, s.systemActor()); err != nil {
			return err
		}
		ch.updated = append(ch.updated, r)
		return nil
	})
}

func (s *Service) HandleBillingModified(ctx context.Context, ev BillingModified) error {
	return s.reactOnRound(ctx, ev.CaregivingRoundID,
		func(r *CaregivingRound) bool { return r.WillBeAffectedByBillingModified(ev) },
		func(r *CaregivingRound, actor Actor) error { return r.HandleBillingModified(ev, actor) })
}

func (s *Service) HandleBillingGenerated(ctx context.Context, ev BillingGenerated) error {
	return s.reactOnRound(ctx, ev.CaregivingRoundID,
		func(r *CaregivingRound) bool { return r.BillingStatus() != ev.ProgressingStatus },
		func(r *CaregivingRound, actor Actor) error { return r.HandleBillingGenerated(ev, actor) })
}

func (s *Service) HandleSettlementModified(ctx context.Context, ev SettlementModified) error {
	return s.reactOnRound(ctx, ev.CaregivingRoundID,
		func(r *CaregivingRound) bool { return r.WillBeAffectedBySettlementModified(ev) },
		func(r *CaregivingRound, actor Actor) error { return r.HandleSettlementModified(ev, actor) })
}

func (s *Service) HandleSettlementGenerated(ctx context.Context, ev SettlementGenerated) error {
	return s.reactOnRound(ctx, ev.CaregivingRoundID,
		func(r *CaregivingRound) bool { return r.SettlementStatus() != ev.ProgressingStatus },
		func(r *CaregivingRound, actor Actor) error { return r.HandleSettlementGenerated(ev, actor) })
}

// HandleReconciliationClosed completes reconciliation of the round when a
// finishing reconciliation closes, and announces when every round of the
// reception is reconciled.
func (s *Service) HandleReconciliationClosed(ctx context.Context, ev ReconciliationClosed) error {
	if ev.IssuedType != IssuedFinish {
		return nil
	}
	return s.unitOfWork(ctx, func(ctx context.Context, ch *roundChange) error {
		actor := s.systemActor()
		r, err := s.rounds.GetByID(ctx, ev.CaregivingRoundID)
		if err != nil {
			return err
		}
		if err := r.HandleReconciliationClosed(ev, actor); err != nil {
			return err
		}
		ch.updated = append(ch.updated, r)

		rounds, err := s.rounds.ListByReceptionID(ctx, r.ReceptionID())
		if err != nil {
			return err
		}
		for _, other := range rounds {
			status := other.Status()
			if other.ID() == r.ID() {
				status = r.Status()
			}
			if !status.IsReconciliationCompleted() {
				return nil
			}
		}
		ch.extra = append(ch.extra, AllCaregivingRoundReconciliationCompleted{
			ReceptionID: r.ReceptionID(),
			CompletedAt: actor.At,
		})
		return nil
	})
}
