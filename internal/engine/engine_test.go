package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"assetline/internal/config"
	"assetline/internal/db"
	"assetline/internal/engine"
	"assetline/internal/migrate"
	"assetline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("firm-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) createAsset(t *testing.T) int64 {
	t.Helper()
	a, err := env.Engine.CreateAsset(env.Ctx, engine.AssetCreateOptions{
		Address: "123 Main St",
		City:    "Columbus",
		State:   "OH",
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	return a.HubID
}

func TestEnsureOutcomeIdempotent(t *testing.T) {
	env := newTestEnv(t)
	hub := env.createAsset(t)
	first, err := env.Engine.EnsureOutcome(env.Ctx, hub, "reo", "tester")
	if err != nil {
		t.Fatalf("ensure outcome: %v", err)
	}
	second, err := env.Engine.EnsureOutcome(env.Ctx, hub, "reo", "tester")
	if err != nil {
		t.Fatalf("ensure outcome again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same outcome id, got %s and %s", first.ID, second.ID)
	}
	// upper case and hyphenated forms resolve to the same row
	third, err := env.Engine.EnsureOutcome(env.Ctx, hub, "REO", "tester")
	if err != nil || third.ID != first.ID {
		t.Fatalf("slug form: %v", err)
	}
}

func TestCreateTaskValidatesType(t *testing.T) {
	env := newTestEnv(t)
	hub := env.createAsset(t)
	if _, err := env.Engine.EnsureOutcome(env.Ctx, hub, "foreclosure", "tester"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		HubID: hub, Track: "foreclosure", TaskType: "eviction", ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("expected invalid task type error")
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		HubID: hub, Track: "foreclosure", TaskType: "referral", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != "open" {
		t.Fatalf("expected open status, got %s", task.Status)
	}
}

func TestCreateTaskRequiresOutcome(t *testing.T) {
	env := newTestEnv(t)
	hub := env.createAsset(t)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		HubID: hub, Track: "dil", TaskType: "owner_contacted", ActorID: "tester",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOfferAcceptConflict(t *testing.T) {
	env := newTestEnv(t)
	hub := env.createAsset(t)
	first, err := env.Engine.CreateOffer(env.Ctx, engine.OfferCreateOptions{
		HubID: hub, Source: "reo", Price: decimal.RequireFromString("250000"),
		BuyerName: "Alpha LLC", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	second, err := env.Engine.CreateOffer(env.Ctx, engine.OfferCreateOptions{
		HubID: hub, Source: "reo", Price: decimal.RequireFromString("260000"),
		BuyerName: "Beta LLC", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create second offer: %v", err)
	}
	if _, err := env.Engine.AcceptOffer(env.Ctx, first.ID, "tester"); err != nil {
		t.Fatalf("accept first: %v", err)
	}
	_, err = env.Engine.AcceptOffer(env.Ctx, second.ID, "tester")
	if !errors.Is(err, engine.ErrOfferConflict) {
		t.Fatalf("expected offer conflict, got %v", err)
	}
	// a different source is an independent deal
	note, err := env.Engine.CreateOffer(env.Ctx, engine.OfferCreateOptions{
		HubID: hub, Source: "note_sale", Status: "accepted",
		Price: decimal.RequireFromString("180000"), BuyerName: "Gamma Fund", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("accepted note offer: %v", err)
	}
	if note.Status != "accepted" {
		t.Fatalf("expected accepted, got %s", note.Status)
	}
}

func TestOfferRequiresBuyerOrBroker(t *testing.T) {
	env := newTestEnv(t)
	hub := env.createAsset(t)
	_, err := env.Engine.CreateOffer(env.Ctx, engine.OfferCreateOptions{
		HubID: hub, Source: "reo", Price: decimal.RequireFromString("100000"), ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("expected buyer_name or broker_id error")
	}
	broker, err := env.Engine.CreateBroker(env.Ctx, engine.BrokerCreateOptions{Name: "Jane Realty", ActorID: "tester"})
	if err != nil {
		t.Fatalf("create broker: %v", err)
	}
	_, err = env.Engine.CreateOffer(env.Ctx, engine.OfferCreateOptions{
		HubID: hub, Source: "reo", Price: decimal.RequireFromString("100000"),
		BrokerID: broker.ID, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("offer with broker: %v", err)
	}
}

func TestScopeEligibility(t *testing.T) {
	env := newTestEnv(t)
	hub := env.createAsset(t)
	if _, err := env.Engine.EnsureOutcome(env.Ctx, hub, "reo", "tester"); err != nil {
		t.Fatal(err)
	}
	trashout, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		HubID: hub, Track: "reo", TaskType: "trashout", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	scope, err := env.Engine.CreateScope(env.Ctx, engine.ScopeCreateOptions{
		TaskID: trashout.ID, Description: "Full trashout and lawn", Cost: decimal.RequireFromString("3500"), ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create scope: %v", err)
	}
	if scope.ID == "" {
		t.Fatalf("expected scope id")
	}
	marketing, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		HubID: hub, Track: "reo", TaskType: "marketing", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.CreateScope(env.Ctx, engine.ScopeCreateOptions{
		TaskID: marketing.ID, Description: "Flyers", Cost: decimal.RequireFromString("200"), ActorID: "tester",
	})
	if !errors.Is(err, engine.ErrScopeNotEligible) {
		t.Fatalf("expected scope eligibility error, got %v", err)
	}
}

func TestValuationSyncsAssetValue(t *testing.T) {
	env := newTestEnv(t)
	hub := env.createAsset(t)
	if _, err := env.Engine.RecordValuation(env.Ctx, engine.ValuationCreateOptions{
		HubID: hub, Kind: "bpo_asis", Value: decimal.RequireFromString("150000"), AsOf: "2024-01-05", ActorID: "tester",
	}); err != nil {
		t.Fatalf("record valuation: %v", err)
	}
	a, err := env.Engine.Repo.GetAsset(env.Ctx, hub)
	if err != nil {
		t.Fatal(err)
	}
	if !a.AsIsValue.Valid || !a.AsIsValue.Decimal.Equal(decimal.RequireFromString("150000")) {
		t.Fatalf("expected as-is value synced, got %+v", a.AsIsValue)
	}
	// an older report must not clobber the current number
	if _, err := env.Engine.RecordValuation(env.Ctx, engine.ValuationCreateOptions{
		HubID: hub, Kind: "bpo_asis", Value: decimal.RequireFromString("120000"), AsOf: "2023-12-01", ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	a, _ = env.Engine.Repo.GetAsset(env.Ctx, hub)
	if !a.AsIsValue.Decimal.Equal(decimal.RequireFromString("150000")) {
		t.Fatalf("older valuation overwrote asset, got %s", a.AsIsValue.Decimal)
	}
	// appraisals are recorded but never touch the asset row
	if _, err := env.Engine.RecordValuation(env.Ctx, engine.ValuationCreateOptions{
		HubID: hub, Kind: "appraisal", Value: decimal.RequireFromString("175000"), AsOf: "2024-02-01", ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	a, _ = env.Engine.Repo.GetAsset(env.Ctx, hub)
	if !a.AsIsValue.Decimal.Equal(decimal.RequireFromString("150000")) {
		t.Fatalf("appraisal should not sync, got %s", a.AsIsValue.Decimal)
	}
}

func TestTrackMetrics(t *testing.T) {
	env := newTestEnv(t)
	hub := env.createAsset(t)
	if _, err := env.Engine.EnsureOutcome(env.Ctx, hub, "short_sale", "tester"); err != nil {
		t.Fatal(err)
	}
	listing, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		HubID: hub, Track: "short_sale", TaskType: "listing", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		HubID: hub, Track: "short_sale", TaskType: "offer_review", ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	done := "done"
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: listing.ID, Status: &done, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	metrics, err := env.Engine.TrackMetricsForHub(env.Ctx, hub)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if len(metrics) != 1 {
		t.Fatalf("expected one track, got %d", len(metrics))
	}
	m := metrics[0]
	if m.Track != "short_sale" || m.TotalTasks != 2 || m.DoneTasks != 1 || m.OpenTasks != 1 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if m.LatestTaskType != "offer_review" {
		t.Fatalf("expected offer_review latest, got %s", m.LatestTaskType)
	}
}

func TestFollowUpRequiresDueOn(t *testing.T) {
	env := newTestEnv(t)
	hub := env.createAsset(t)
	_, err := env.Engine.CreateCalendarEvent(env.Ctx, engine.CalendarCreateOptions{
		HubID: hub, Kind: "follow_up", Body: "Call borrower", ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("expected due_on error")
	}
	ev, err := env.Engine.CreateCalendarEvent(env.Ctx, engine.CalendarCreateOptions{
		HubID: hub, Kind: "follow_up", Body: "Call borrower", DueOn: "2024-02-01", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create follow-up: %v", err)
	}
	doneFlag := true
	ev, err = env.Engine.UpdateCalendarEvent(env.Ctx, engine.CalendarUpdateOptions{ID: ev.ID, Done: &doneFlag, ActorID: "tester"})
	if err != nil || !ev.Done {
		t.Fatalf("mark done: %v", err)
	}
}

func TestDeleteOutcomeCascades(t *testing.T) {
	env := newTestEnv(t)
	hub := env.createAsset(t)
	if _, err := env.Engine.EnsureOutcome(env.Ctx, hub, "dil", "tester"); err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		HubID: hub, Track: "dil", TaskType: "owner_contacted", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteOutcome(env.Ctx, hub, "dil", "tester"); err != nil {
		t.Fatalf("delete outcome: %v", err)
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected task gone, got %v", err)
	}
}

func TestBootstrapRBACAndWhoAmI(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Team = []config.TeamMember{{ActorID: "alice", Name: "Alice", Roles: []string{"manager"}}}
	if err := env.Engine.BootstrapRBAC(env.Ctx, "system"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	who, err := env.Engine.WhoAmI(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if len(who.Roles) != 1 || who.Roles[0] != "manager" {
		t.Fatalf("expected manager role, got %v", who.Roles)
	}
	if len(who.Permissions) == 0 {
		t.Fatalf("expected permissions for manager")
	}
	if err := env.Engine.Authorize(env.Ctx, "alice", "offers.accept"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	err = env.Engine.Authorize(env.Ctx, "nobody", "offers.accept")
	if err == nil {
		t.Fatalf("expected forbidden")
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	raw, key, err := env.Engine.CreateAPIKey(env.Ctx, "alice", "ci", "system")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if raw == "" || key.ID == "" {
		t.Fatalf("expected raw key and id")
	}
	got, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(raw))
	if err != nil || got.ActorID != "alice" {
		t.Fatalf("lookup by hash: %v", err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, key.ID, "system"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(raw)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected key gone, got %v", err)
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	hub := env.createAsset(t)
	if _, err := env.Engine.EnsureOutcome(env.Ctx, hub, "reo", "tester"); err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		HubID: hub, Track: "reo", TaskType: "eviction", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	done := "done"
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: &done, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE entity_id=?`, task.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	if count < 2 {
		t.Fatalf("expected create and update events, got %d", count)
	}
}
