// Package dashboard assembles the hub view rendered by al status: an asset
// summary card, one card per present outcome track with its latest-task pill,
// and the offer, scope, and note panels beneath them.
package dashboard

import (
	"context"
	"fmt"
	"strings"

	"assetline/internal/display"
	"assetline/internal/domain"
	"assetline/internal/repo"
	"assetline/internal/track"
)

// Fetcher is the read surface the view needs. repo.Repo satisfies it.
type Fetcher interface {
	GetAsset(ctx context.Context, hubID int64) (domain.Asset, error)
	ListOutcomes(ctx context.Context, f repo.OutcomeFilters) ([]domain.Outcome, error)
	ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error)
	ListOffers(ctx context.Context, f repo.OfferFilters) ([]domain.Offer, error)
	ListScopes(ctx context.Context, f repo.ScopeFilters) ([]domain.Scope, error)
	ListCalendarEvents(ctx context.Context, f repo.CalendarFilters) ([]domain.CalendarEvent, error)
	ListAssignments(ctx context.Context, hubID int64, actorID string) ([]domain.Assignment, error)
	LatestValuation(ctx context.Context, hubID int64, kind string) (domain.Valuation, error)
}

// ValuationCell is one underwriting cell: the latest valuation of a kind.
type ValuationCell struct {
	Value string
	AsOf  string
}

// Summary is the asset header card with money and date fields preformatted.
type Summary struct {
	HubID           int64
	AddressLine     string
	PropertyType    string
	LoanNumber      string
	BorrowerName    string
	Delinquency     track.Badge
	UPB             string
	TotalDebt       string
	DeferredBalance string
	AsIsValue       string
	ARVValue        string
	BPOAsIs         *ValuationCell
	BPOARV          *ValuationCell
	Appraisal       *ValuationCell
	UpdatedAt       string
}

// TrackCard is one outcome track present on the hub. Latest is the newest
// task by (created_at, id), nil when the track has no tasks yet.
type TrackCard struct {
	Track       string
	Label       string
	Badge       track.Badge
	OutcomeID   string
	Status      string
	TotalTasks  int
	OpenTasks   int
	DoneTasks   int
	Latest      *domain.Task
	LatestBadge track.Badge
	Tasks       []domain.Task
}

// HubView is everything al status renders for one asset hub. Cards holds
// only tracks with an outcome, in dashboard order.
type HubView struct {
	Summary     Summary
	Cards       []TrackCard
	Offers      []domain.Offer
	Scopes      []domain.Scope
	Notes       []domain.CalendarEvent
	Assignments []domain.Assignment
}

// Build fetches and assembles the view for one hub. A missing asset returns
// repo.ErrNotFound unwrapped so callers can message it.
func Build(ctx context.Context, f Fetcher, hubID int64) (HubView, error) {
	var view HubView
	asset, err := f.GetAsset(ctx, hubID)
	if err != nil {
		return view, err
	}
	view.Summary = buildSummary(ctx, f, asset)

	outcomes, err := f.ListOutcomes(ctx, repo.OutcomeFilters{HubID: hubID})
	if err != nil {
		return view, fmt.Errorf("list outcomes: %w", err)
	}
	byTrack := make(map[string]domain.Outcome, len(outcomes))
	for _, o := range outcomes {
		byTrack[o.Track] = o
	}
	for _, tr := range track.All() {
		o, ok := byTrack[tr]
		if !ok {
			continue
		}
		tasks, err := f.ListTasks(ctx, repo.TaskFilters{OutcomeID: o.ID})
		if err != nil {
			return view, fmt.Errorf("list tasks for %s: %w", tr, err)
		}
		view.Cards = append(view.Cards, buildCard(o, tasks))
	}

	if view.Offers, err = f.ListOffers(ctx, repo.OfferFilters{HubID: hubID}); err != nil {
		return view, fmt.Errorf("list offers: %w", err)
	}
	if view.Scopes, err = f.ListScopes(ctx, repo.ScopeFilters{HubID: hubID}); err != nil {
		return view, fmt.Errorf("list scopes: %w", err)
	}
	if view.Notes, err = f.ListCalendarEvents(ctx, repo.CalendarFilters{HubID: hubID}); err != nil {
		return view, fmt.Errorf("list calendar: %w", err)
	}
	if view.Assignments, err = f.ListAssignments(ctx, hubID, ""); err != nil {
		return view, fmt.Errorf("list assignments: %w", err)
	}
	return view, nil
}

func buildSummary(ctx context.Context, f Fetcher, a domain.Asset) Summary {
	s := Summary{
		HubID:           a.HubID,
		AddressLine:     addressLine(a),
		PropertyType:    a.PropertyType,
		LoanNumber:      a.LoanNumber,
		BorrowerName:    a.BorrowerName,
		Delinquency:     track.DelinquencyBadge(a.DelinquencyStatus),
		UPB:             display.NullCurrency(a.UPB),
		TotalDebt:       display.NullCurrency(a.TotalDebt),
		DeferredBalance: display.NullCurrency(a.DeferredBalance),
		AsIsValue:       display.NullCurrency(a.AsIsValue),
		ARVValue:        display.NullCurrency(a.ARVValue),
		UpdatedAt:       display.Date(a.UpdatedAt),
	}
	s.BPOAsIs = latestCell(ctx, f, a.HubID, "bpo_asis")
	s.BPOARV = latestCell(ctx, f, a.HubID, "bpo_arv")
	s.Appraisal = latestCell(ctx, f, a.HubID, "appraisal")
	return s
}

// latestCell loads the newest valuation of a kind. Misses and read errors
// both leave the cell empty; the card renders without the row.
func latestCell(ctx context.Context, f Fetcher, hubID int64, kind string) *ValuationCell {
	v, err := f.LatestValuation(ctx, hubID, kind)
	if err != nil {
		return nil
	}
	return &ValuationCell{
		Value: display.Currency(v.Value),
		AsOf:  display.Date(v.AsOf),
	}
}

func buildCard(o domain.Outcome, tasks []domain.Task) TrackCard {
	card := TrackCard{
		Track:      o.Track,
		Label:      track.Label(o.Track),
		Badge:      track.TrackBadge(o.Track),
		OutcomeID:  o.ID,
		Status:     o.Status,
		TotalTasks: len(tasks),
		Tasks:      tasks,
	}
	for _, t := range tasks {
		if t.Status == "done" {
			card.DoneTasks++
		} else {
			card.OpenTasks++
		}
	}
	if latest := domain.LatestTask(tasks); latest != nil {
		card.Latest = latest
		card.LatestBadge = track.TaskBadge(latest.TaskType)
	}
	return card
}

func addressLine(a domain.Asset) string {
	var parts []string
	if a.Address != "" {
		parts = append(parts, a.Address)
	}
	if a.City != "" {
		parts = append(parts, a.City)
	}
	if tail := strings.TrimSpace(a.State + " " + a.Zip); tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, ", ")
}
