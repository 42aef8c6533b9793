package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"assetline/internal/config"
	"assetline/internal/domain"
	"assetline/internal/events"
	"assetline/internal/repo"
	"assetline/internal/track"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ErrOfferConflict signals a second accepted offer for the same hub and source.
var ErrOfferConflict = errors.New("an accepted offer already exists for this asset and source")

// ErrScopeNotEligible signals a scope on a task outside the REO trashout or
// renovation stages.
var ErrScopeNotEligible = errors.New("scopes are limited to reo trashout and renovation tasks")

// AssetCreateOptions are parameters for onboarding an asset.
type AssetCreateOptions struct {
	Address           string
	City              string
	State             string
	Zip               string
	PropertyType      string
	LoanNumber        string
	BorrowerName      string
	UPB               decimal.NullDecimal
	TotalDebt         decimal.NullDecimal
	DeferredBalance   decimal.NullDecimal
	AsIsValue         decimal.NullDecimal
	ARVValue          decimal.NullDecimal
	DelinquencyStatus string
	ActorID           string
}

func (e Engine) CreateAsset(ctx context.Context, opts AssetCreateOptions) (domain.Asset, error) {
	if opts.DelinquencyStatus != "" && !track.ValidDelinquencyStatus(opts.DelinquencyStatus) {
		return domain.Asset{}, fmt.Errorf("invalid delinquency status %s", opts.DelinquencyStatus)
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Asset{
		Address:           opts.Address,
		City:              opts.City,
		State:             opts.State,
		Zip:               opts.Zip,
		PropertyType:      opts.PropertyType,
		LoanNumber:        opts.LoanNumber,
		BorrowerName:      opts.BorrowerName,
		UPB:               opts.UPB,
		TotalDebt:         opts.TotalDebt,
		DeferredBalance:   opts.DeferredBalance,
		AsIsValue:         opts.AsIsValue,
		ARVValue:          opts.ARVValue,
		DelinquencyStatus: opts.DelinquencyStatus,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Asset{}, err
	}
	defer tx.Rollback()

	hubID, err := e.Repo.InsertAssetTx(ctx, tx, a)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("insert asset: %w", err)
	}
	a.HubID = hubID
	if err := e.Events.Append(ctx, tx, "asset.created", hubID, "asset", fmt.Sprintf("%d", hubID), opts.ActorID, events.EventPayload{"address": a.Address}); err != nil {
		return domain.Asset{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, err
	}
	return a, nil
}

// AssetUpdateOptions carries partial updates; nil fields are left untouched.
type AssetUpdateOptions struct {
	HubID             int64
	Address           *string
	City              *string
	State             *string
	Zip               *string
	PropertyType      *string
	LoanNumber        *string
	BorrowerName      *string
	UPB               *decimal.NullDecimal
	TotalDebt         *decimal.NullDecimal
	DeferredBalance   *decimal.NullDecimal
	AsIsValue         *decimal.NullDecimal
	ARVValue          *decimal.NullDecimal
	DelinquencyStatus *string
	ActorID           string
}

func (e Engine) UpdateAsset(ctx context.Context, opts AssetUpdateOptions) (domain.Asset, error) {
	a, err := e.Repo.GetAsset(ctx, opts.HubID)
	if err != nil {
		return a, err
	}
	if opts.Address != nil {
		a.Address = *opts.Address
	}
	if opts.City != nil {
		a.City = *opts.City
	}
	if opts.State != nil {
		a.State = *opts.State
	}
	if opts.Zip != nil {
		a.Zip = *opts.Zip
	}
	if opts.PropertyType != nil {
		a.PropertyType = *opts.PropertyType
	}
	if opts.LoanNumber != nil {
		a.LoanNumber = *opts.LoanNumber
	}
	if opts.BorrowerName != nil {
		a.BorrowerName = *opts.BorrowerName
	}
	if opts.UPB != nil {
		a.UPB = *opts.UPB
	}
	if opts.TotalDebt != nil {
		a.TotalDebt = *opts.TotalDebt
	}
	if opts.DeferredBalance != nil {
		a.DeferredBalance = *opts.DeferredBalance
	}
	if opts.AsIsValue != nil {
		a.AsIsValue = *opts.AsIsValue
	}
	if opts.ARVValue != nil {
		a.ARVValue = *opts.ARVValue
	}
	if opts.DelinquencyStatus != nil {
		if *opts.DelinquencyStatus != "" && !track.ValidDelinquencyStatus(*opts.DelinquencyStatus) {
			return a, fmt.Errorf("invalid delinquency status %s", *opts.DelinquencyStatus)
		}
		a.DelinquencyStatus = *opts.DelinquencyStatus
	}
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateAssetTx(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "asset.updated", a.HubID, "asset", fmt.Sprintf("%d", a.HubID), opts.ActorID, events.EventPayload{}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

func (e Engine) DeleteAsset(ctx context.Context, hubID int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAssetTx(ctx, tx, hubID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "asset.deleted", hubID, "asset", fmt.Sprintf("%d", hubID), actorID, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}

// EnsureOutcome creates the outcome for a hub and track, or returns the
// existing one. Outcome IDs are deterministic so retries land on the same row.
func (e Engine) EnsureOutcome(ctx context.Context, hubID int64, trackID, actorID string) (domain.Outcome, error) {
	normalized, err := track.Parse(trackID)
	if err != nil {
		return domain.Outcome{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Outcome{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetAssetTx(ctx, tx, hubID); err != nil {
		return domain.Outcome{}, err
	}
	existing, err := e.Repo.GetOutcomeByTrackTx(ctx, tx, hubID, normalized)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Outcome{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	o := domain.Outcome{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("outcome|%d|%s", hubID, normalized))).String(),
		HubID:     hubID,
		Track:     normalized,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertOutcomeTx(ctx, tx, o); err != nil {
		return domain.Outcome{}, fmt.Errorf("insert outcome: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "outcome.created", hubID, "outcome", o.ID, actorID, events.EventPayload{"track": o.Track}); err != nil {
		return domain.Outcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Outcome{}, err
	}
	return o, nil
}

func (e Engine) SetOutcomeStatus(ctx context.Context, hubID int64, trackID, status, actorID string) (domain.Outcome, error) {
	normalized, err := track.Parse(trackID)
	if err != nil {
		return domain.Outcome{}, err
	}
	if status != "active" && status != "closed" {
		return domain.Outcome{}, fmt.Errorf("invalid outcome status %s", status)
	}
	o, err := e.Repo.GetOutcomeByTrack(ctx, hubID, normalized)
	if err != nil {
		return o, err
	}
	from := o.Status
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return o, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateOutcomeStatusTx(ctx, tx, o.ID, status, now); err != nil {
		return o, err
	}
	if err := e.Events.Append(ctx, tx, "outcome.updated", hubID, "outcome", o.ID, actorID, events.EventPayload{"from": from, "to": status}); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	o.Status = status
	o.UpdatedAt = now
	return o, nil
}

// DeleteOutcome removes a track and all of its tasks and scopes.
func (e Engine) DeleteOutcome(ctx context.Context, hubID int64, trackID, actorID string) error {
	normalized, err := track.Parse(trackID)
	if err != nil {
		return err
	}
	o, err := e.Repo.GetOutcomeByTrack(ctx, hubID, normalized)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteOutcomeTx(ctx, tx, o.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "outcome.deleted", hubID, "outcome", o.ID, actorID, events.EventPayload{"track": o.Track}); err != nil {
		return err
	}
	return tx.Commit()
}

// TaskCreateOptions are parameters for creating a stage task under a track.
type TaskCreateOptions struct {
	HubID        int64
	Track        string
	TaskType     string
	AssigneeID   string
	Notes        string
	ScheduledFor string
	ActorID      string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	normalized, err := track.Parse(opts.Track)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.TaskType == "" {
		return domain.Task{}, errors.New("task_type is required")
	}
	if !track.ValidTaskType(normalized, opts.TaskType) {
		return domain.Task{}, fmt.Errorf("invalid task type %s for track %s", opts.TaskType, normalized)
	}
	o, err := e.Repo.GetOutcomeByTrack(ctx, opts.HubID, normalized)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:           uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("task|%s|%s|%s", o.ID, opts.TaskType, now))).String(),
		OutcomeID:    o.ID,
		TaskType:     opts.TaskType,
		Status:       "open",
		AssigneeID:   optionalString(opts.AssigneeID),
		Notes:        opts.Notes,
		ScheduledFor: optionalString(opts.ScheduledFor),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", opts.HubID, "task", t.ID, opts.ActorID, events.EventPayload{"track": normalized, "task_type": t.TaskType}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions encapsulates allowed updates; nil fields are left untouched.
type TaskUpdateOptions struct {
	ID           string
	TaskType     *string
	Status       *string
	AssigneeID   *string
	Notes        *string
	ScheduledFor *string
	ActorID      string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	o, err := e.Repo.GetOutcome(ctx, t.OutcomeID)
	if err != nil {
		return t, err
	}
	fromStatus := t.Status
	if opts.TaskType != nil {
		if !track.ValidTaskType(o.Track, *opts.TaskType) {
			return t, fmt.Errorf("invalid task type %s for track %s", *opts.TaskType, o.Track)
		}
		t.TaskType = *opts.TaskType
	}
	if opts.Status != nil {
		if *opts.Status != "open" && *opts.Status != "done" {
			return t, fmt.Errorf("invalid task status %s", *opts.Status)
		}
		t.Status = *opts.Status
	}
	if opts.AssigneeID != nil {
		if *opts.AssigneeID == "" {
			t.AssigneeID = nil
		} else {
			t.AssigneeID = opts.AssigneeID
		}
	}
	if opts.Notes != nil {
		t.Notes = *opts.Notes
	}
	if opts.ScheduledFor != nil {
		if *opts.ScheduledFor == "" {
			t.ScheduledFor = nil
		} else {
			t.ScheduledFor = opts.ScheduledFor
		}
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", o.HubID, "task", t.ID, opts.ActorID, events.EventPayload{
		"from_status": fromStatus,
		"to_status":   t.Status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, id, actorID string) error {
	t, err := e.Repo.GetTask(ctx, id)
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
	if err := e.Repo.DeleteTaskTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", o.HubID, "task", id, actorID, events.EventPayload{"task_type": t.TaskType}); err != nil {
		return err
	}
	return tx.Commit()
}

// TrackMetricsForHub summarizes task progress per existing track for an asset.
func (e Engine) TrackMetricsForHub(ctx context.Context, hubID int64) ([]domain.TrackMetrics, error) {
	if _, err := e.Repo.GetAsset(ctx, hubID); err != nil {
		return nil, err
	}
	outcomes, err := e.Repo.ListOutcomes(ctx, repo.OutcomeFilters{HubID: hubID})
	if err != nil {
		return nil, err
	}
	res := make([]domain.TrackMetrics, 0, len(outcomes))
	for _, ord := range track.All() {
		for _, o := range outcomes {
			if o.Track != ord {
				continue
			}
			tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{OutcomeID: o.ID})
			if err != nil {
				return nil, err
			}
			m := domain.TrackMetrics{Track: o.Track, TotalTasks: len(tasks)}
			for _, t := range tasks {
				if t.Status == "done" {
					m.DoneTasks++
				} else {
					m.OpenTasks++
				}
			}
			if latest := domain.LatestTask(tasks); latest != nil {
				m.LatestTaskType = latest.TaskType
				if latest.CreatedAt != "" {
					createdAt := latest.CreatedAt
					m.LatestTaskAt = &createdAt
				}
			}
			res = append(res, m)
		}
	}
	return res, nil
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
