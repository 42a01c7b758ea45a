package caregiving

import (
	"time"

	"github.com/google/uuid"

	"github.com/careclaims/careclaims/internal/platform/auth"
	"github.com/careclaims/careclaims/internal/platform/events"
	"github.com/careclaims/careclaims/pkg/modification"
)

// Actor is who performs an aggregate operation and when. A nil Policy
// allows everything.
type Actor struct {
	Subject auth.Subject
	At      time.Time
	Policy  auth.Policy
}

func (a Actor) authorize(action auth.Action, object auth.ScopedObject) error {
	if a.Policy == nil {
		return nil
	}
	return a.Policy.Check(a.Subject, action, object)
}

func (a Actor) cause() ModificationCause {
	if a.Subject.HasRole(auth.RoleSystem) {
		return CauseEtc
	}
	return CauseDirectEdit
}

// TrackedData is the part of a round whose changes are reported through
// CaregivingRoundModified. Absent values are zero.
type TrackedData struct {
	ProgressingStatus ProgressingStatus
	BillingStatus     BillingProgressingStatus
	SettlementStatus  SettlementProgressingStatus
	CaregiverInfo     CaregiverInfo
	StartDateTime     time.Time
	EndDateTime       time.Time
	Remarks           string
	IsLastRound       bool
}

// FinishingResult holds the round that follows a finished one, if any. The
// caller persists it.
type FinishingResult struct {
	Successor *CaregivingRound
}

// CaregivingRound is one caregiving period of a reception.
type CaregivingRound struct {
	id               uuid.UUID
	number           int
	receptionInfo    ReceptionInfo
	state            CaregivingState
	billingStatus    BillingProgressingStatus
	settlementStatus SettlementProgressingStatus
	remarks          string

	baseline *TrackedData
	events   []events.Event
}

// NewCaregivingRound creates a not started round for the reception.
func NewCaregivingRound(number int, receptionInfo ReceptionInfo) *CaregivingRound {
	id := uuid.New()
	return newRound(id, number, receptionInfo, NotStartedState{Ref: RoundRef{ID: id, Number: number}})
}

func newRound(id uuid.UUID, number int, receptionInfo ReceptionInfo, state CaregivingState) *CaregivingRound {
	return &CaregivingRound{
		id:               id,
		number:           number,
		receptionInfo:    receptionInfo,
		state:            state,
		billingStatus:    BillingNotStarted,
		settlementStatus: SettlementNotStarted,
	}
}

// RoundRecord is the stored form of a round.
type RoundRecord struct {
	ID               uuid.UUID
	Number           int
	ReceptionInfo    ReceptionInfo
	State            StateData
	BillingStatus    BillingProgressingStatus
	SettlementStatus SettlementProgressingStatus
	Remarks          string
}

// RestoreCaregivingRound rebuilds a round from storage. It fails when the
// stored state data does not satisfy its status.
func RestoreCaregivingRound(rec RoundRecord) (*CaregivingRound, error) {
	state, err := RestoreState(RoundRef{ID: rec.ID, Number: rec.Number}, rec.State)
	if err != nil {
		return nil, err
	}
	r := newRound(rec.ID, rec.Number, rec.ReceptionInfo, state)
	r.billingStatus = rec.BillingStatus
	r.settlementStatus = rec.SettlementStatus
	r.remarks = rec.Remarks
	return r, nil
}

// Record returns the stored form of the round.
func (r *CaregivingRound) Record() RoundRecord {
	return RoundRecord{
		ID:               r.id,
		Number:           r.number,
		ReceptionInfo:    r.receptionInfo,
		State:            r.state.Data(),
		BillingStatus:    r.billingStatus,
		SettlementStatus: r.settlementStatus,
		Remarks:          r.remarks,
	}
}

func (r *CaregivingRound) ID() uuid.UUID                { return r.id }
func (r *CaregivingRound) Number() int                  { return r.number }
func (r *CaregivingRound) ReceptionInfo() ReceptionInfo { return r.receptionInfo }
func (r *CaregivingRound) State() CaregivingState       { return r.state }
func (r *CaregivingRound) StateData() StateData         { return r.state.Data() }
func (r *CaregivingRound) Status() ProgressingStatus    { return r.state.Status() }
func (r *CaregivingRound) Remarks() string              { return r.remarks }
func (r *CaregivingRound) ReceptionID() uuid.UUID       { return r.receptionInfo.ReceptionID }
func (r *CaregivingRound) ManagingOrganizationID() uuid.UUID {
	return r.receptionInfo.managingOrganizationID()
}

func (r *CaregivingRound) BillingStatus() BillingProgressingStatus { return r.billingStatus }
func (r *CaregivingRound) SettlementStatus() SettlementProgressingStatus {
	return r.settlementStatus
}

// IsLastRound reports whether the round was finished for a reason that ends
// the reception's caregiving.
func (r *CaregivingRound) IsLastRound() bool {
	return r.state.Data().ClosingReasonType.EndsReception()
}

func (r *CaregivingRound) tracked() TrackedData {
	d := r.state.Data()
	t := TrackedData{
		ProgressingStatus: d.ProgressingStatus,
		BillingStatus:     r.billingStatus,
		SettlementStatus:  r.settlementStatus,
		Remarks:           r.remarks,
		IsLastRound:       d.ClosingReasonType.EndsReception(),
	}
	if d.CaregiverInfo != nil {
		t.CaregiverInfo = *d.CaregiverInfo
	}
	if d.StartDateTime != nil {
		t.StartDateTime = d.StartDateTime.UTC()
	}
	if d.EndDateTime != nil {
		t.EndDateTime = d.EndDateTime.UTC()
	}
	return t
}

// setState replaces the state after checking the caregiving period. The
// round is left untouched on failure.
func (r *CaregivingRound) setState(next CaregivingState) error {
	d := next.Data()
	if d.StartDateTime != nil && d.EndDateTime != nil && d.StartDateTime.After(*d.EndDateTime) {
		return &IllegalCaregivingPeriodError{RoundID: r.id, Start: *d.StartDateTime, End: *d.EndDateTime}
	}
	r.state = next
	return nil
}

// track runs fn after authorizing the actor and reports the change against
// the state before the first uncommitted change. A pending
// CaregivingRoundModified is replaced rather than duplicated.
func (r *CaregivingRound) track(actor Actor, fn func() error) error {
	if err := actor.authorize(auth.ActionModify, r); err != nil {
		return err
	}
	if r.baseline == nil {
		b := r.tracked()
		r.baseline = &b
	}
	if err := fn(); err != nil {
		return err
	}
	r.refreshModifiedEvents(actor)
	return nil
}

func (r *CaregivingRound) refreshModifiedEvents(actor Actor) {
	r.dropEvents(EventCaregivingRoundModified, EventLastCaregivingRoundModified)

	before, after := *r.baseline, r.tracked()
	if before == after {
		return
	}
	r.events = append(r.events, CaregivingRoundModified{
		CaregivingRoundID:     r.id,
		CaregivingRoundNumber: r.number,
		ReceptionID:           r.receptionInfo.ReceptionID,
		Cause:                 actor.cause(),
		EditorID:              actor.Subject.ID,
		ModifiedAt:            actor.At,
		ProgressingStatus:     modification.New(before.ProgressingStatus, after.ProgressingStatus),
		BillingStatus:         modification.New(before.BillingStatus, after.BillingStatus),
		SettlementStatus:      modification.New(before.SettlementStatus, after.SettlementStatus),
		CaregiverInfo:         modification.New(before.CaregiverInfo, after.CaregiverInfo),
		StartDateTime:         modification.New(before.StartDateTime, after.StartDateTime),
		EndDateTime:           modification.New(before.EndDateTime, after.EndDateTime),
		Remarks:               modification.New(before.Remarks, after.Remarks),
	})
	if before.IsLastRound && after.IsLastRound {
		r.events = append(r.events, LastCaregivingRoundModified{
			CaregivingRoundID: r.id,
			ReceptionID:       r.receptionInfo.ReceptionID,
			Cause:             actor.cause(),
			EditorID:          actor.Subject.ID,
			ModifiedAt:        actor.At,
			EndDateTime:       modification.New(before.EndDateTime, after.EndDateTime),
		})
	}
}

func (r *CaregivingRound) dropEvents(names ...string) {
	kept := r.events[:0]
	for _, e := range r.events {
		drop := false
		for _, n := range names {
			if e.EventName() == n {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, e)
		}
	}
	r.events = kept
}

// PullEvents returns the events raised since the last pull and starts a new
// tracking window.
func (r *CaregivingRound) PullEvents() []events.Event {
	out := r.events
	r.events = nil
	r.baseline = nil
	return out
}

func (r *CaregivingRound) AssignCaregiver(info CaregiverInfo, actor Actor) error {
	if current := r.state.Data().CaregiverInfo; current != nil && *current == info {
		return actor.authorize(auth.ActionModify, r)
	}
	return r.track(actor, func() error {
		next, err := AssignCaregiver(r.state, info)
		if err != nil {
			return err
		}
		if err := r.setState(next); err != nil {
			return err
		}
		r.events = append(r.events, CaregiverAssignedToCaregivingRound{
			CaregivingRoundID: r.id,
			ReceptionID:       r.receptionInfo.ReceptionID,
			CaregiverInfo:     info,
			AssignedAt:        actor.At,
			SubjectID:         actor.Subject.ID,
		})
		return nil
	})
}

func (r *CaregivingRound) StartCaregiving(at time.Time, actor Actor) error {
	return r.track(actor, func() error {
		next, err := Start(r.state, at)
		if err != nil {
			return err
		}
		if err := r.setState(next); err != nil {
			return err
		}
		r.events = append(r.events, r.startedEvent(at, actor))
		return nil
	})
}

func (r *CaregivingRound) startedEvent(at time.Time, actor Actor) CaregivingRoundStarted {
	return CaregivingRoundStarted{
		CaregivingRoundID:     r.id,
		CaregivingRoundNumber: r.number,
		ReceptionID:           r.receptionInfo.ReceptionID,
		StartDateTime:         at,
		StartedAt:             actor.At,
		SubjectID:             actor.Subject.ID,
	}
}

func (r *CaregivingRound) EditCaregivingStartDateTime(at time.Time, actor Actor) error {
	return r.transition(actor, func(s CaregivingState) (CaregivingState, error) {
		return EditStartDateTime(s, at)
	})
}

func (r *CaregivingRound) EditCaregivingEndDateTime(at time.Time, actor Actor) error {
	return r.transition(actor, func(s CaregivingState) (CaregivingState, error) {
		return EditEndDateTime(s, at)
	})
}

func (r *CaregivingRound) Pend(actor Actor) error {
	return r.transition(actor, Pend)
}

// Rematch resumes matching for a pending round with its current caregiver.
func (r *CaregivingRound) Rematch(actor Actor) error {
	return r.transition(actor, func(s CaregivingState) (CaregivingState, error) {
		c := s.Data().CaregiverInfo
		if c == nil {
			return nil, illegal(s, "rematch")
		}
		return Rematch(s, *c)
	})
}

func (r *CaregivingRound) Cancel(reason ClosingReasonType, detail string, actor Actor) error {
	return r.transition(actor, func(s CaregivingState) (CaregivingState, error) {
		return Cancel(s, reason, detail, actor.At)
	})
}

func (r *CaregivingRound) Stop(at time.Time, actor Actor) error {
	return r.transition(actor, func(s CaregivingState) (CaregivingState, error) {
		return Stop(s, at)
	})
}

func (r *CaregivingRound) transition(actor Actor, fn func(CaregivingState) (CaregivingState, error)) error {
	return r.track(actor, func() error {
		next, err := fn(r.state)
		if err != nil {
			return err
		}
		return r.setState(next)
	})
}

// Finish completes the round. Depending on the reason a successor round is
// created, already started with the same caregiver or not started at all.
func (r *CaregivingRound) Finish(end time.Time, reason ClosingReasonType, actor Actor) (FinishingResult, error) {
	var result FinishingResult
	err := r.track(actor, func() error {
		complete, err := Complete(r.state, end, reason)
		if err != nil {
			return err
		}
		if err := r.setState(complete); err != nil {
			return err
		}

		nextRef := RoundRef{ID: uuid.New(), Number: r.number + 1}
		if next, ok := complete.Successor(nextRef); ok {
			successor := newRound(nextRef.ID, nextRef.Number, r.receptionInfo, next)
			if _, started := next.(InProgressState); started {
				successor.events = append(successor.events, successor.startedEvent(end, actor))
			}
			result.Successor = successor
			return nil
		}
		r.events = append(r.events, LastCaregivingRoundFinished{
			CaregivingRoundID: r.id,
			ReceptionID:       r.receptionInfo.ReceptionID,
			EndDateTime:       end,
			FinishedAt:        actor.At,
		})
		return nil
	})
	if err != nil {
		return FinishingResult{}, err
	}
	return result, nil
}

func (r *CaregivingRound) UpdateRemarks(remarks string, actor Actor) error {
	if remarks == r.remarks {
		return actor.authorize(auth.ActionModify, r)
	}
	return r.track(actor, func() error {
		r.remarks = remarks
		return nil
	})
}

// HandleReceptionModified refreshes the reception snapshot. The current
// caregiving manager is kept when the event does not carry one.
func (r *CaregivingRound) HandleReceptionModified(ev ReceptionModified, actor Actor) error {
	return r.track(actor, func() error {
		manager := r.receptionInfo.CaregivingManagerInfo
		if ev.CaregivingManagerInfo != nil {
			m := *ev.CaregivingManagerInfo
			manager = &m
		}
		r.receptionInfo = ReceptionInfo{
			ReceptionID:                r.receptionInfo.ReceptionID,
			InsuranceNumber:            ev.InsuranceNumber,
			AccidentNumber:             ev.AccidentNumber,
			MaskedPatientName:          ev.MaskedPatientName,
			ExpectedCaregivingStart:    copyTime(ev.ExpectedCaregivingStartDate),
			ReceptionProgressingStatus: ev.ProgressingStatus.Current,
			CaregivingManagerInfo:      manager,
		}
		return nil
	})
}

// WillBeAffectedByBillingModified reports whether the event changes the
// billing status mirrored on the round.
func (r *CaregivingRound) WillBeAffectedByBillingModified(ev BillingModified) bool {
	return ev.ProgressingStatus.HasChanged() && ev.ProgressingStatus.Current != r.billingStatus
}

func (r *CaregivingRound) HandleBillingModified(ev BillingModified, actor Actor) error {
	if !r.WillBeAffectedByBillingModified(ev) {
		return nil
	}
	return r.setBillingStatus(ev.ProgressingStatus.Current, actor)
}

func (r *CaregivingRound) HandleBillingGenerated(ev BillingGenerated, actor Actor) error {
	if ev.ProgressingStatus == r.billingStatus {
		return nil
	}
	return r.setBillingStatus(ev.ProgressingStatus, actor)
}

func (r *CaregivingRound) setBillingStatus(status BillingProgressingStatus, actor Actor) error {
	return r.track(actor, func() error {
		r.billingStatus = status
		return nil
	})
}

// WillBeAffectedBySettlementModified reports whether the event changes the
// settlement status mirrored on the round.
func (r *CaregivingRound) WillBeAffectedBySettlementModified(ev SettlementModified) bool {
	return ev.ProgressingStatus.HasChanged() && ev.ProgressingStatus.Current != r.settlementStatus
}

func (r *CaregivingRound) HandleSettlementModified(ev SettlementModified, actor Actor) error {
	if !r.WillBeAffectedBySettlementModified(ev) {
		return nil
	}
	return r.setSettlementStatus(ev.ProgressingStatus.Current, actor)
}

func (r *CaregivingRound) HandleSettlementGenerated(ev SettlementGenerated, actor Actor) error {
	if ev.ProgressingStatus == r.settlementStatus {
		return nil
	}
	return r.setSettlementStatus(ev.ProgressingStatus, actor)
}

func (r *CaregivingRound) setSettlementStatus(status SettlementProgressingStatus, actor Actor) error {
	return r.track(actor, func() error {
		r.settlementStatus = status
		return nil
	})
}

func (r *CaregivingRound) HandleReconciliationClosed(_ ReconciliationClosed, actor Actor) error {
	return r.transition(actor, CompleteReconciliation)
}

// CompleteReconciliation marks a completed round as reconciled.
func (r *CaregivingRound) CompleteReconciliation(actor Actor) error {
	return r.transition(actor, CompleteReconciliation)
}
