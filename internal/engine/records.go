package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"assetline/internal/domain"
	"assetline/internal/events"
	"assetline/internal/repo"
	"assetline/internal/track"
)

// ScopeCreateOptions are parameters for bidding out REO field work.
type ScopeCreateOptions struct {
	TaskID       string
	VendorID     string
	Description  string
	Cost         decimal.Decimal
	ScheduledFor string
	ActorID      string
}

func (e Engine) CreateScope(ctx context.Context, opts ScopeCreateOptions) (domain.Scope, error) {
	s := domain.Scope{
		ID:           uuid.New().String(),
		TaskID:       opts.TaskID,
		VendorID:     optionalString(opts.VendorID),
		Description:  opts.Description,
		Cost:         opts.Cost,
		ScheduledFor: optionalString(opts.ScheduledFor),
	}
	if err := s.Validate(); err != nil {
		return domain.Scope{}, err
	}
	t, err := e.Repo.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.Scope{}, err
	}
	o, err := e.Repo.GetOutcome(ctx, t.OutcomeID)
	if err != nil {
		return domain.Scope{}, err
	}
	if !track.ScopeEligible(o.Track, t.TaskType) {
		return domain.Scope{}, ErrScopeNotEligible
	}
	if s.VendorID != nil {
		if _, err := e.Repo.GetBroker(ctx, *s.VendorID); err != nil {
			return domain.Scope{}, err
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	s.CreatedAt = now
	s.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Scope{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertScopeTx(ctx, tx, s); err != nil {
		return domain.Scope{}, err
	}
	if err := e.Events.Append(ctx, tx, "scope.created", o.HubID, "scope", s.ID, opts.ActorID, events.EventPayload{
		"task_type": t.TaskType,
		"cost":      s.Cost.String(),
	}); err != nil {
		return domain.Scope{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Scope{}, err
	}
	return s, nil
}

// ScopeUpdateOptions encapsulates allowed updates; nil fields are left untouched.
type ScopeUpdateOptions struct {
	ID           string
	VendorID     *string
	Description  *string
	Cost         *decimal.Decimal
	ScheduledFor *string
	CompletedOn  *string
	ActorID      string
}

func (e Engine) UpdateScope(ctx context.Context, opts ScopeUpdateOptions) (domain.Scope, error) {
	s, err := e.Repo.GetScope(ctx, opts.ID)
	if err != nil {
		return s, err
	}
	if opts.VendorID != nil {
		if *opts.VendorID == "" {
			s.VendorID = nil
		} else {
			if _, err := e.Repo.GetBroker(ctx, *opts.VendorID); err != nil {
				return s, err
			}
			s.VendorID = opts.VendorID
		}
	}
	if opts.Description != nil {
		s.Description = *opts.Description
	}
	if opts.Cost != nil {
		s.Cost = *opts.Cost
	}
	if opts.ScheduledFor != nil {
		if *opts.ScheduledFor == "" {
			s.ScheduledFor = nil
		} else {
			s.ScheduledFor = opts.ScheduledFor
		}
	}
	if opts.CompletedOn != nil {
		if *opts.CompletedOn == "" {
			s.CompletedOn = nil
		} else {
			s.CompletedOn = opts.CompletedOn
		}
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	t, err := e.Repo.GetTask(ctx, s.TaskID)
	if err != nil {
		return s, err
	}
	o, err := e.Repo.GetOutcome(ctx, t.OutcomeID)
	if err != nil {
		return s, err
	}
	s.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateScopeTx(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, "scope.updated", o.HubID, "scope", s.ID, opts.ActorID, events.EventPayload{}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

func (e Engine) DeleteScope(ctx context.Context, id, actorID string) error {
	s, err := e.Repo.GetScope(ctx, id)
	if err != nil {
		return err
	}
	t, err := e.Repo.GetTask(ctx, s.TaskID)
	if err != nil {
		return err
	}
	o, err := e.Repo.GetOutcome(ctx, t.OutcomeID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteScopeTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "scope.deleted", o.HubID, "scope", id, actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// CalendarCreateOptions are parameters for a note, follow-up, or todo.
type CalendarCreateOptions struct {
	HubID        int64
	Kind         string
	Body         string
	OutcomeTrack string
	TaskID       string
	DueOn        string
	AssigneeID   string
	ActorID      string
}

func (e Engine) CreateCalendarEvent(ctx context.Context, opts CalendarCreateOptions) (domain.CalendarEvent, error) {
	if opts.Kind != "note" && opts.Kind != "follow_up" && opts.Kind != "todo" {
		return domain.CalendarEvent{}, fmt.Errorf("invalid calendar kind %s", opts.Kind)
	}
	ce := domain.CalendarEvent{
		ID:         uuid.New().String(),
		HubID:      opts.HubID,
		Kind:       opts.Kind,
		Body:       opts.Body,
		TaskID:     optionalString(opts.TaskID),
		DueOn:      optionalString(opts.DueOn),
		AssigneeID: optionalString(opts.AssigneeID),
	}
	if opts.OutcomeTrack != "" {
		normalized, err := track.Parse(opts.OutcomeTrack)
		if err != nil {
			return domain.CalendarEvent{}, err
		}
		ce.OutcomeTrack = &normalized
	}
	if err := ce.Validate(); err != nil {
		return domain.CalendarEvent{}, err
	}
	if _, err := e.Repo.GetAsset(ctx, opts.HubID); err != nil {
		return domain.CalendarEvent{}, err
	}
	if ce.TaskID != nil {
		t, err := e.Repo.GetTask(ctx, *ce.TaskID)
		if err != nil {
			return domain.CalendarEvent{}, err
		}
		o, err := e.Repo.GetOutcome(ctx, t.OutcomeID)
		if err != nil {
			return domain.CalendarEvent{}, err
		}
		if o.HubID != opts.HubID {
			return domain.CalendarEvent{}, fmt.Errorf("task %s belongs to a different asset", *ce.TaskID)
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	ce.CreatedAt = now
	ce.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CalendarEvent{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertCalendarEventTx(ctx, tx, ce); err != nil {
		return domain.CalendarEvent{}, err
	}
	if err := e.Events.Append(ctx, tx, "calendar.created", ce.HubID, "calendar_event", ce.ID, opts.ActorID, events.EventPayload{"kind": ce.Kind}); err != nil {
		return domain.CalendarEvent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CalendarEvent{}, err
	}
	return ce, nil
}

// CalendarUpdateOptions encapsulates allowed updates; nil fields are left untouched.
type CalendarUpdateOptions struct {
	ID         string
	Body       *string
	DueOn      *string
	AssigneeID *string
	Done       *bool
	ActorID    string
}

func (e Engine) UpdateCalendarEvent(ctx context.Context, opts CalendarUpdateOptions) (domain.CalendarEvent, error) {
	ce, err := e.Repo.GetCalendarEvent(ctx, opts.ID)
	if err != nil {
		return ce, err
	}
	if opts.Body != nil {
		ce.Body = *opts.Body
	}
	if opts.DueOn != nil {
		if *opts.DueOn == "" {
			ce.DueOn = nil
		} else {
			ce.DueOn = opts.DueOn
		}
	}
	if opts.AssigneeID != nil {
		if *opts.AssigneeID == "" {
			ce.AssigneeID = nil
		} else {
			ce.AssigneeID = opts.AssigneeID
		}
	}
	if opts.Done != nil {
		ce.Done = *opts.Done
	}
	if err := ce.Validate(); err != nil {
		return ce, err
	}
	ce.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ce, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateCalendarEventTx(ctx, tx, ce); err != nil {
		return ce, err
	}
	if err := e.Events.Append(ctx, tx, "calendar.updated", ce.HubID, "calendar_event", ce.ID, opts.ActorID, events.EventPayload{"done": ce.Done}); err != nil {
		return ce, err
	}
	if err := tx.Commit(); err != nil {
		return ce, err
	}
	return ce, nil
}

func (e Engine) DeleteCalendarEvent(ctx context.Context, id, actorID string) error {
	ce, err := e.Repo.GetCalendarEvent(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteCalendarEventTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "calendar.deleted", ce.HubID, "calendar_event", id, actorID, events.EventPayload{"kind": ce.Kind}); err != nil {
		return err
	}
	return tx.Commit()
}

// BrokerCreateOptions are parameters for adding a broker, vendor, or trading
// partner to the directory.
type BrokerCreateOptions struct {
	Kind    string
	Name    string
	Firm    string
	Email   string
	Phone   string
	Market  string
	ActorID string
}

func (e Engine) CreateBroker(ctx context.Context, opts BrokerCreateOptions) (domain.Broker, error) {
	kind := opts.Kind
	if kind == "" {
		kind = "broker"
	}
	if kind != "broker" && kind != "vendor" && kind != "trading_partner" {
		return domain.Broker{}, fmt.Errorf("invalid broker kind %s", kind)
	}
	b := domain.Broker{
		ID:        uuid.New().String(),
		Kind:      kind,
		Name:      opts.Name,
		Firm:      opts.Firm,
		Email:     opts.Email,
		Phone:     opts.Phone,
		Market:    opts.Market,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := b.Validate(); err != nil {
		return domain.Broker{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Broker{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertBroker(ctx, tx, b); err != nil {
		return domain.Broker{}, err
	}
	if err := e.Events.Append(ctx, tx, "broker.created", 0, "broker", b.ID, opts.ActorID, events.EventPayload{"kind": b.Kind, "name": b.Name}); err != nil {
		return domain.Broker{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Broker{}, err
	}
	return b, nil
}

// BrokerUpdateOptions encapsulates allowed updates; nil fields are left untouched.
type BrokerUpdateOptions struct {
	ID      string
	Name    *string
	Firm    *string
	Email   *string
	Phone   *string
	Market  *string
	ActorID string
}

func (e Engine) UpdateBroker(ctx context.Context, opts BrokerUpdateOptions) (domain.Broker, error) {
	b, err := e.Repo.GetBroker(ctx, opts.ID)
	if err != nil {
		return b, err
	}
	if opts.Name != nil {
		b.Name = *opts.Name
	}
	if opts.Firm != nil {
		b.Firm = *opts.Firm
	}
	if opts.Email != nil {
		b.Email = *opts.Email
	}
	if opts.Phone != nil {
		b.Phone = *opts.Phone
	}
	if opts.Market != nil {
		b.Market = *opts.Market
	}
	if err := b.Validate(); err != nil {
		return b, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return b, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateBroker(ctx, tx, b); err != nil {
		return b, err
	}
	if err := e.Events.Append(ctx, tx, "broker.updated", 0, "broker", b.ID, opts.ActorID, events.EventPayload{}); err != nil {
		return b, err
	}
	if err := tx.Commit(); err != nil {
		return b, err
	}
	return b, nil
}

// DeleteBroker removes a directory entry. Offers and scopes that referenced it
// keep their rows with the link cleared.
func (e Engine) DeleteBroker(ctx context.Context, id, actorID string) error {
	b, err := e.Repo.GetBroker(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteBrokerTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "broker.deleted", 0, "broker", id, actorID, events.EventPayload{"name": b.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// ValuationCreateOptions are parameters for recording a BPO or appraisal.
type ValuationCreateOptions struct {
	HubID   int64
	Kind    string
	Value   decimal.Decimal
	AsOf    string
	Source  string
	Notes   string
	ActorID string
}

// RecordValuation stores a valuation and, for BPO kinds, refreshes the asset's
// as-is or ARV column when the new record is at least as recent as the prior
// latest of that kind. Appraisals never touch the asset row.
func (e Engine) RecordValuation(ctx context.Context, opts ValuationCreateOptions) (domain.Valuation, error) {
	if opts.Kind != "bpo_asis" && opts.Kind != "bpo_arv" && opts.Kind != "appraisal" {
		return domain.Valuation{}, fmt.Errorf("invalid valuation kind %s", opts.Kind)
	}
	v := domain.Valuation{
		ID:        uuid.New().String(),
		HubID:     opts.HubID,
		Kind:      opts.Kind,
		Value:     opts.Value,
		AsOf:      opts.AsOf,
		Source:    opts.Source,
		Notes:     opts.Notes,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := v.Validate(); err != nil {
		return domain.Valuation{}, err
	}
	a, err := e.Repo.GetAsset(ctx, opts.HubID)
	if err != nil {
		return domain.Valuation{}, err
	}
	syncAsset := false
	if v.Kind == "bpo_asis" || v.Kind == "bpo_arv" {
		prior, err := e.Repo.LatestValuation(ctx, v.HubID, v.Kind)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			syncAsset = true
		case err != nil:
			return domain.Valuation{}, err
		default:
			syncAsset = v.AsOf >= prior.AsOf
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Valuation{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.CreateValuationTx(ctx, tx, v); err != nil {
		return domain.Valuation{}, err
	}
	if syncAsset {
		switch v.Kind {
		case "bpo_asis":
			a.AsIsValue = decimal.NewNullDecimal(v.Value)
		case "bpo_arv":
			a.ARVValue = decimal.NewNullDecimal(v.Value)
		}
		a.UpdatedAt = e.now().UTC().Format(time.RFC3339)
		if err := e.Repo.UpdateAssetTx(ctx, tx, a); err != nil {
			return domain.Valuation{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "valuation.recorded", v.HubID, "valuation", v.ID, opts.ActorID, events.EventPayload{
		"kind":  v.Kind,
		"value": v.Value.String(),
		"as_of": v.AsOf,
	}); err != nil {
		return domain.Valuation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Valuation{}, err
	}
	return v, nil
}

func (e Engine) SetAssignment(ctx context.Context, hubID int64, actorID, duty, byActorID string) (domain.Assignment, error) {
	if duty != "asset_manager" && duty != "analyst" && duty != "broker_contact" {
		return domain.Assignment{}, fmt.Errorf("invalid duty %s", duty)
	}
	if _, err := e.Repo.GetAsset(ctx, hubID); err != nil {
		return domain.Assignment{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer tx.Rollback()

	asg, err := e.Repo.UpsertAssignmentTx(ctx, tx, hubID, actorID, duty)
	if err != nil {
		return domain.Assignment{}, err
	}
	if err := e.Events.Append(ctx, tx, "assignment.set", hubID, "assignment", actorID, byActorID, events.EventPayload{"duty": duty}); err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	return asg, nil
}

func (e Engine) ClearAssignment(ctx context.Context, hubID int64, actorID, byActorID string) error {
	if _, err := e.Repo.GetAssignment(ctx, hubID, actorID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAssignmentTx(ctx, tx, hubID, actorID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "assignment.cleared", hubID, "assignment", actorID, byActorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}
