package assetlinesdk_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"assetline/internal/config"
	"assetline/internal/db"
	"assetline/internal/engine"
	"assetline/internal/migrate"
	"assetline/internal/server"
	sdk "assetline/sdk/go"
)

func newTestAPI(t *testing.T) string {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("assetline"))
	handler, err := server.New(server.Config{Engine: eng})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	})
	return "http://" + ln.Addr().String()
}

func newTestClient(t *testing.T) *sdk.Client {
	t.Helper()
	c := sdk.New(newTestAPI(t))
	c.ActorID = "ana"
	return c
}

func TestHydrateMakesEnsuredTrackVisible(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	a, err := c.CreateAsset(ctx, sdk.AssetParams{Address: "12 Ocean Ave", State: "FL"})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}

	st := c.Hydrate(ctx, a.HubID)
	if len(st.Visible) != 0 {
		t.Fatalf("expected no visible tracks before ensure, got %v", st.Visible)
	}

	o, err := c.EnsureOutcome(ctx, a.HubID, "reo")
	if err != nil {
		t.Fatalf("ensure reo: %v", err)
	}
	if o.Track != "reo" || o.Status != "active" {
		t.Fatalf("unexpected outcome: %+v", o)
	}
	if _, err := c.CreateTask(ctx, sdk.TaskParams{AssetHubID: a.HubID, Track: "reo", TaskType: "eviction"}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	// Still the cached state until the hub is invalidated.
	if again := c.Hydrate(ctx, a.HubID); again != st {
		t.Fatal("expected memoized state on repeat hydrate")
	}

	c.Invalidate(a.HubID)
	st = c.Hydrate(ctx, a.HubID)
	if len(st.Visible) != 1 || st.Visible[0] != "reo" {
		t.Fatalf("expected reo visible, got %v", st.Visible)
	}
	if !st.IsVisible("reo") || st.IsVisible("dil") {
		t.Fatalf("visibility flags wrong: %+v", st.Outcomes)
	}
	if st.Outcomes["reo"].ID != o.ID {
		t.Fatalf("expected ensured outcome in state, got %+v", st.Outcomes["reo"])
	}
	tasks := st.Tasks["reo"]
	if len(tasks) != 1 || tasks[0].TaskType != "eviction" {
		t.Fatalf("expected prefetched eviction task, got %+v", tasks)
	}

	if _, err := c.EnsureOutcome(ctx, a.HubID, "foreclosure"); err != nil {
		t.Fatalf("ensure foreclosure: %v", err)
	}
	c.Invalidate(a.HubID)
	st = c.Hydrate(ctx, a.HubID)
	want := []string{"foreclosure", "reo"}
	if len(st.Visible) != len(want) || st.Visible[0] != want[0] || st.Visible[1] != want[1] {
		t.Fatalf("expected tracks %v in dashboard order, got %v", want, st.Visible)
	}
}

func TestHydrateFailOpen(t *testing.T) {
	// Grab a free port and close it so every probe gets a refused connection.
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := sdk.New("http://" + addr)
	c.Timeout = 2 * time.Second
	c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	st := c.Hydrate(context.Background(), 7)
	if st == nil {
		t.Fatal("expected a state even when every probe fails")
	}
	if len(st.Visible) != 0 || len(st.Outcomes) != 0 {
		t.Fatalf("expected empty state, got %+v", st)
	}
}

func TestAssetAndOfferFlow(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	a, err := c.CreateAsset(ctx, sdk.AssetParams{
		Address:           "88 Birch Rd",
		State:             "OH",
		UPB:               "125000.50",
		DelinquencyStatus: "90",
	})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	if a.UPB == nil || *a.UPB != "125000.50" {
		t.Fatalf("expected upb to round-trip, got %v", a.UPB)
	}

	a, err = c.UpdateAsset(ctx, a.HubID, sdk.AssetParams{BorrowerName: "R. Alvarez"})
	if err != nil {
		t.Fatalf("update asset: %v", err)
	}
	if a.BorrowerName != "R. Alvarez" || a.State != "OH" {
		t.Fatalf("partial update went wrong: %+v", a)
	}

	assets, err := c.Assets(ctx, sdk.AssetFilters{State: "OH"})
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(assets) != 1 || assets[0].HubID != a.HubID {
		t.Fatalf("expected the one OH asset, got %+v", assets)
	}

	if _, err := c.EnsureOutcome(ctx, a.HubID, "reo"); err != nil {
		t.Fatalf("ensure reo: %v", err)
	}

	first, err := c.CreateOffer(ctx, sdk.OfferParams{AssetHubID: a.HubID, Source: "reo", Price: "180000"})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if first.Status != "pending" {
		t.Fatalf("expected pending default, got %q", first.Status)
	}
	second, err := c.CreateOffer(ctx, sdk.OfferParams{AssetHubID: a.HubID, Source: "reo", Price: "175000"})
	if err != nil {
		t.Fatalf("create second offer: %v", err)
	}

	if _, err := c.AcceptOffer(ctx, first.ID); err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	_, err = c.AcceptOffer(ctx, second.ID)
	var apiErr *sdk.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || !strings.Contains(apiErr.Body, "offer_conflict") {
		t.Fatalf("expected 409 offer_conflict, got %d %s", apiErr.StatusCode, apiErr.Body)
	}

	accepted, err := c.Offers(ctx, sdk.OfferFilters{AssetHubID: a.HubID, Status: "accepted"})
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	if len(accepted) != 1 || accepted[0].ID != first.ID {
		t.Fatalf("expected one accepted offer, got %+v", accepted)
	}

	if _, err := c.Asset(ctx, 404040); err == nil {
		t.Fatal("expected error for unknown hub")
	} else if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
}

func TestScopesTasksAndMetrics(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	a, err := c.CreateAsset(ctx, sdk.AssetParams{Address: "3 Mill Ln"})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	if _, err := c.EnsureOutcome(ctx, a.HubID, "reo"); err != nil {
		t.Fatalf("ensure reo: %v", err)
	}
	task, err := c.CreateTask(ctx, sdk.TaskParams{AssetHubID: a.HubID, Track: "reo", TaskType: "trashout"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	scope, err := c.CreateScope(ctx, sdk.ScopeParams{TaskID: task.ID, Description: "debris removal", Cost: "1500.50"})
	if err != nil {
		t.Fatalf("create scope: %v", err)
	}
	if scope.Cost != "1500.50" {
		t.Fatalf("expected cost to round-trip, got %q", scope.Cost)
	}
	scope, err = c.UpdateScope(ctx, scope.ID, sdk.ScopeUpdate{CompletedOn: "2024-06-12"})
	if err != nil {
		t.Fatalf("update scope: %v", err)
	}
	if scope.CompletedOn != "2024-06-12" {
		t.Fatalf("expected completion date, got %+v", scope)
	}
	scopes, err := c.Scopes(ctx, sdk.ScopeFilters{TaskID: task.ID})
	if err != nil {
		t.Fatalf("list scopes: %v", err)
	}
	if len(scopes) != 1 {
		t.Fatalf("expected one scope, got %d", len(scopes))
	}

	if _, err = c.UpdateTask(ctx, task.ID, sdk.TaskUpdate{Status: "done"}); err != nil {
		t.Fatalf("update task: %v", err)
	}

	metrics, err := c.TaskMetrics(ctx, a.HubID)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if metrics.HubID != a.HubID || len(metrics.Tracks) != 1 {
		t.Fatalf("expected metrics for one track, got %+v", metrics)
	}
	m := metrics.Tracks[0]
	if m.Track != "reo" || m.TotalTasks != 1 || m.DoneTasks != 1 || m.LatestTaskType != "trashout" {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if m.TrackBadge.Label == "" || m.LatestTaskBadge == nil {
		t.Fatalf("expected badges on metrics: %+v", m)
	}
}

func TestDirectoryValuationsAndNotes(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	a, err := c.CreateAsset(ctx, sdk.AssetParams{Address: "610 Lake Dr"})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}

	b, err := c.CreateBroker(ctx, sdk.BrokerParams{Name: "Dana Reeves", Market: "Tampa"})
	if err != nil {
		t.Fatalf("create broker: %v", err)
	}
	if b.Kind != "broker" {
		t.Fatalf("expected default kind broker, got %q", b.Kind)
	}
	b, err = c.UpdateBroker(ctx, b.ID, sdk.BrokerUpdate{Firm: "Reeves Realty"})
	if err != nil {
		t.Fatalf("update broker: %v", err)
	}
	if b.Firm != "Reeves Realty" {
		t.Fatalf("expected firm set, got %+v", b)
	}
	found, err := c.Brokers(ctx, sdk.BrokerFilters{Market: "Tampa"})
	if err != nil {
		t.Fatalf("list brokers: %v", err)
	}
	if len(found) != 1 || found[0].ID != b.ID {
		t.Fatalf("expected the Tampa broker, got %+v", found)
	}

	if _, err := c.RecordValuation(ctx, sdk.ValuationParams{
		AssetHubID: a.HubID, Kind: "bpo_asis", Value: "150000", AsOf: "2024-03-01",
	}); err != nil {
		t.Fatalf("record valuation: %v", err)
	}
	a, err = c.Asset(ctx, a.HubID)
	if err != nil {
		t.Fatalf("refetch asset: %v", err)
	}
	if a.AsIsValue == nil || *a.AsIsValue != "150000" {
		t.Fatalf("expected as-is value synced, got %v", a.AsIsValue)
	}

	note, err := c.CreateCalendarEvent(ctx, sdk.CalendarEventParams{
		AssetHubID: a.HubID, Kind: "follow_up", Body: "call servicer", DueOn: "2024-07-01",
	})
	if err != nil {
		t.Fatalf("create follow-up: %v", err)
	}
	done := true
	note, err = c.UpdateCalendarEvent(ctx, note.ID, sdk.CalendarEventUpdate{Done: &done})
	if err != nil {
		t.Fatalf("update follow-up: %v", err)
	}
	if !note.Done {
		t.Fatalf("expected follow-up done, got %+v", note)
	}
	open, err := c.CalendarEvents(ctx, sdk.CalendarEventFilters{AssetHubID: a.HubID, Done: "false"})
	if err != nil {
		t.Fatalf("list calendar: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open entries, got %+v", open)
	}

	if _, err := c.SetAssignment(ctx, a.HubID, "jordan", "analyst"); err != nil {
		t.Fatalf("set assignment: %v", err)
	}
	assigned, err := c.Assignments(ctx, a.HubID)
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(assigned) != 1 || assigned[0].Duty != "analyst" {
		t.Fatalf("expected one analyst assignment, got %+v", assigned)
	}
	if err := c.ClearAssignment(ctx, a.HubID, "jordan"); err != nil {
		t.Fatalf("clear assignment: %v", err)
	}
}

func TestRegistryEventsAndIdentity(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	reg, err := c.Registry(ctx)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if len(reg.Tracks) != 6 || reg.Tracks[0].ID != "dil" {
		t.Fatalf("unexpected registry tracks: %+v", reg.Tracks)
	}
	if len(reg.Tracks) != len(sdk.Tracks) {
		t.Fatalf("registry and client disagree on track count")
	}
	for i, tr := range sdk.Tracks {
		if reg.Tracks[i].ID != tr {
			t.Fatalf("track order mismatch at %d: %s vs %s", i, reg.Tracks[i].ID, tr)
		}
	}

	if _, err := c.CreateAsset(ctx, sdk.AssetParams{Address: "1 Audit Way"}); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	events, err := c.Events(ctx, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) == 0 || events[0].Type != "asset.created" {
		t.Fatalf("expected asset.created first, got %+v", events)
	}
	if events[0].ActorID != "ana" {
		t.Fatalf("expected actor attribution, got %q", events[0].ActorID)
	}

	me, err := c.WhoAmI(ctx)
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if me.ActorID != "ana" {
		t.Fatalf("expected ana, got %q", me.ActorID)
	}
}
