package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"assetline/internal/config"
	"assetline/internal/db"
	"assetline/internal/engine"
	"assetline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) (*testServer, engine.Engine) {
	t.Helper()
	return newTestServerWithAuth(t, AuthConfig{})
}

func newTestServerWithAuth(t *testing.T, authCfg AuthConfig) (*testServer, engine.Engine) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("assetline"))
	// Deterministic, strictly increasing clock so ordering and "latest"
	// selections are stable.
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	eng.Now = func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Second)
	}
	handler, err := New(Config{Engine: eng, Auth: authCfg})
	if err != nil {
		t.Fatalf("build handler: %v", err)
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
	return &testServer{URL: "http://" + ln.Addr().String(), client: &http.Client{}}, eng
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decodeAs[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal %T: %v in %s", v, err, string(data))
	}
	return v
}

type errEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func wantErrorCode(t *testing.T, data []byte, code string) errEnvelope {
	t.Helper()
	env := decodeAs[errEnvelope](t, data)
	if env.Error.Code != code {
		t.Fatalf("expected error code %s, got %q in %s", code, env.Error.Code, string(data))
	}
	return env
}

func createAsset(t *testing.T, srv *testServer, body map[string]any) AssetResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/assets/", body, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create asset status %d: %s", res.StatusCode, string(data))
	}
	return decodeAs[AssetResponse](t, data)
}

func ensureOutcome(t *testing.T, srv *testServer, trackID string, hubID int64) OutcomeResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/"+trackID+"/", map[string]any{
		"asset_hub_id": hubID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ensure outcome %s status %d: %s", trackID, res.StatusCode, string(data))
	}
	return decodeAs[OutcomeResponse](t, data)
}

func createTask(t *testing.T, srv *testServer, hubID int64, trackID, taskType string) TaskResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/tasks/", map[string]any{
		"asset_hub_id": hubID,
		"track":        trackID,
		"task_type":    taskType,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task %s status %d: %s", taskType, res.StatusCode, string(data))
	}
	return decodeAs[TaskResponse](t, data)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/healthz", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d: %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), "ok") {
		t.Fatalf("unexpected healthz body: %s", string(data))
	}
}

func TestAssetLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	a := createAsset(t, srv, map[string]any{
		"address":            "12 Oak St",
		"city":               "Trenton",
		"state":              "NJ",
		"zip":                "08601",
		"property_type":      "sfr",
		"loan_number":        "LN-100",
		"borrower_name":      "J. Doe",
		"upb":                "125000.50",
		"total_debt":         250000,
		"delinquency_status": "90",
	})
	if a.HubID <= 0 {
		t.Fatalf("expected assigned hub id, got %d", a.HubID)
	}
	if a.UPB == nil || *a.UPB != "125000.50" {
		t.Fatalf("expected upb 125000.50, got %v", a.UPB)
	}
	if a.TotalDebt == nil || *a.TotalDebt != "250000" {
		t.Fatalf("expected total_debt 250000, got %v", a.TotalDebt)
	}
	if a.DeferredBalance != nil {
		t.Fatalf("expected deferred_balance null, got %v", *a.DeferredBalance)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/assets/1/", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get asset status %d: %s", res.StatusCode, string(data))
	}
	got := decodeAs[AssetResponse](t, data)
	if got.Address != "12 Oak St" || got.State != "NJ" {
		t.Fatalf("unexpected asset: %+v", got)
	}

	// Absent keys stay untouched, an explicit null clears.
	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/am/assets/1/", map[string]any{
		"state": "PA",
		"upb":   nil,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch asset status %d: %s", res.StatusCode, string(data))
	}
	patched := decodeAs[AssetResponse](t, data)
	if patched.State != "PA" {
		t.Fatalf("expected state PA, got %s", patched.State)
	}
	if patched.UPB != nil {
		t.Fatalf("expected upb cleared, got %v", *patched.UPB)
	}
	if patched.TotalDebt == nil || *patched.TotalDebt != "250000" {
		t.Fatalf("expected total_debt untouched, got %v", patched.TotalDebt)
	}
	if patched.Address != "12 Oak St" {
		t.Fatalf("expected address untouched, got %s", patched.Address)
	}

	createAsset(t, srv, map[string]any{"address": "77 Pine Ave", "state": "NJ"})
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/assets/?state=NJ", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list assets status %d: %s", res.StatusCode, string(data))
	}
	page := decodeAs[paginatedAssets](t, data)
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 NJ asset after patch, got %d", len(page.Items))
	}
	if page.Items[0].Address != "77 Pine Ave" {
		t.Fatalf("unexpected filtered asset: %+v", page.Items[0])
	}

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/am/assets/1/", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete asset status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/assets/1/", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d: %s", res.StatusCode, string(data))
	}
	wantErrorCode(t, data, "not_found")
}

func TestAssetListPagination(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, addr := range []string{"1 First St", "2 Second St", "3 Third St"} {
		createAsset(t, srv, map[string]any{"address": addr})
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/assets/?limit=2", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	first := decodeAs[paginatedAssets](t, data)
	if len(first.Items) != 2 || first.NextCursor == "" {
		t.Fatalf("expected 2 items and a cursor, got %d items cursor %q", len(first.Items), first.NextCursor)
	}
	if first.Items[0].Address != "3 Third St" || first.Items[1].Address != "2 Second St" {
		t.Fatalf("expected newest-first order, got %+v", first.Items)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/assets/?limit=2&cursor="+first.NextCursor, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page status %d: %s", res.StatusCode, string(data))
	}
	second := decodeAs[paginatedAssets](t, data)
	if len(second.Items) != 1 || second.NextCursor != "" {
		t.Fatalf("expected final page with 1 item, got %d items cursor %q", len(second.Items), second.NextCursor)
	}
	if second.Items[0].Address != "1 First St" {
		t.Fatalf("unexpected second page: %+v", second.Items)
	}
}

func TestAssetValidationAndRouting(t *testing.T) {
	srv, _ := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/assets/", map[string]any{
		"address": "9 Elm St",
		"upb":     "not-a-number",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad amount, got %d: %s", res.StatusCode, string(data))
	}
	wantErrorCode(t, data, "bad_request")

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/assets/", map[string]any{
		"address":            "9 Elm St",
		"delinquency_status": "450",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad delinquency status, got %d: %s", res.StatusCode, string(data))
	}

	// Collection routes carry a trailing slash.
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/assets", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without trailing slash, got %d", res.StatusCode)
	}
}

func TestEnsureOutcomeIdempotent(t *testing.T) {
	srv, _ := newTestServer(t)
	a := createAsset(t, srv, map[string]any{"address": "40 Main St"})

	first := ensureOutcome(t, srv, "foreclosure", a.HubID)
	if first.Track != "foreclosure" || first.Status != "active" || first.HubID != a.HubID {
		t.Fatalf("unexpected outcome: %+v", first)
	}
	second := ensureOutcome(t, srv, "foreclosure", a.HubID)
	if second.ID != first.ID {
		t.Fatalf("expected same outcome on repeat ensure, got %s and %s", first.ID, second.ID)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/probate/", map[string]any{
		"asset_hub_id": a.HubID,
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown track, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/reo/", map[string]any{}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing hub id, got %d: %s", res.StatusCode, string(data))
	}

	// Hub ids are accepted as numbers or numeric strings.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/reo/", map[string]any{
		"asset_hub_id": "1",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected string hub id accepted, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/outcomes/?asset_hub_id=1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list outcomes status %d: %s", res.StatusCode, string(data))
	}
	page := decodeAs[paginatedOutcomes](t, data)
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(page.Items))
	}

	// The per-track collection answers the existence question directly.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/outcomes/reo/?asset_hub_id=1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list track outcomes status %d: %s", res.StatusCode, string(data))
	}
	page = decodeAs[paginatedOutcomes](t, data)
	if len(page.Items) != 1 || page.Items[0].Track != "reo" {
		t.Fatalf("expected reo outcome, got %+v", page.Items)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/outcomes/note_sale/?asset_hub_id=1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list track outcomes status %d: %s", res.StatusCode, string(data))
	}
	page = decodeAs[paginatedOutcomes](t, data)
	if len(page.Items) != 0 {
		t.Fatalf("expected no note_sale outcome, got %+v", page.Items)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/outcomes/probate/?asset_hub_id=1", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown track list, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/am/outcomes/foreclosure/1/", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete outcome status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/outcomes/?asset_hub_id=1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list outcomes status %d: %s", res.StatusCode, string(data))
	}
	page = decodeAs[paginatedOutcomes](t, data)
	if len(page.Items) != 1 || page.Items[0].Track != "reo" {
		t.Fatalf("expected only reo outcome left, got %+v", page.Items)
	}
}

func TestOutcomeStatusChange(t *testing.T) {
	srv, _ := newTestServer(t)
	a := createAsset(t, srv, map[string]any{"address": "5 Short Sale Ct"})
	ensureOutcome(t, srv, "short_sale", a.HubID)

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/am/outcomes/short_sale/1/", map[string]any{
		"status": "closed",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch outcome status %d: %s", res.StatusCode, string(data))
	}
	o := decodeAs[OutcomeResponse](t, data)
	if o.Status != "closed" {
		t.Fatalf("expected closed, got %s", o.Status)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/am/outcomes/short_sale/1/", map[string]any{
		"status": "paused",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d: %s", res.StatusCode, string(data))
	}
}

func TestTaskFlowAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	a := createAsset(t, srv, map[string]any{"address": "88 REO Way"})
	ensureOutcome(t, srv, "reo", a.HubID)

	eviction := createTask(t, srv, a.HubID, "reo", "eviction")
	if eviction.Status != "open" {
		t.Fatalf("expected new task open, got %s", eviction.Status)
	}
	trashout := createTask(t, srv, a.HubID, "reo", "trashout")

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/am/outcomes/tasks/"+eviction.ID+"/", map[string]any{
		"status": "done",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch task status %d: %s", res.StatusCode, string(data))
	}
	done := decodeAs[TaskResponse](t, data)
	if done.Status != "done" {
		t.Fatalf("expected done, got %s", done.Status)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/outcomes/tasks/?asset_hub_id=1&track=reo", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks status %d: %s", res.StatusCode, string(data))
	}
	page := decodeAs[paginatedTasks](t, data)
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(page.Items))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/outcomes/task-metrics/?asset_hub_id=1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d: %s", res.StatusCode, string(data))
	}
	var metrics struct {
		AssetHubID int64                  `json:"asset_hub_id"`
		Tracks     []TrackMetricsResponse `json:"tracks"`
	}
	if err := json.Unmarshal(data, &metrics); err != nil {
		t.Fatalf("unmarshal metrics: %v", err)
	}
	if len(metrics.Tracks) != 1 {
		t.Fatalf("expected metrics for 1 track, got %d", len(metrics.Tracks))
	}
	m := metrics.Tracks[0]
	if m.Track != "reo" || m.TotalTasks != 2 || m.OpenTasks != 1 || m.DoneTasks != 1 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
	if m.LatestTaskType != "trashout" {
		t.Fatalf("expected latest task trashout, got %s", m.LatestTaskType)
	}
	if m.LatestTaskBadge == nil || m.LatestTaskBadge.Label == "" {
		t.Fatalf("expected latest task badge, got %+v", m.LatestTaskBadge)
	}
	if m.TrackBadge.Label == "" || m.TrackBadge.Tone == "" {
		t.Fatalf("expected track badge, got %+v", m.TrackBadge)
	}
	_ = trashout

	// No outcome on the dil track yet.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/tasks/", map[string]any{
		"asset_hub_id": a.HubID,
		"track":        "dil",
		"task_type":    "owner_contacted",
	}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for task without outcome, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/tasks/", map[string]any{
		"asset_hub_id": a.HubID,
		"track":        "reo",
		"task_type":    "owner_contacted",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for foreign task type, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/am/outcomes/tasks/"+eviction.ID+"/", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete task status %d: %s", res.StatusCode, string(data))
	}
}

func TestOfferSingleAccepted(t *testing.T) {
	srv, _ := newTestServer(t)
	a := createAsset(t, srv, map[string]any{"address": "3 Auction Rd"})

	mkOffer := func(body map[string]any) (int, []byte) {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/offers/", body, nil)
		return res.StatusCode, data
	}
	status, data := mkOffer(map[string]any{
		"asset_hub_id": a.HubID, "source": "reo", "price": "100000", "buyer_name": "Acme LLC",
	})
	if status != http.StatusCreated {
		t.Fatalf("offer1 status %d: %s", status, string(data))
	}
	offer1 := decodeAs[OfferResponse](t, data)
	if offer1.Status != "pending" || offer1.Price != "100000" {
		t.Fatalf("unexpected offer1: %+v", offer1)
	}
	status, data = mkOffer(map[string]any{
		"asset_hub_id": a.HubID, "source": "reo", "price": 110000, "buyer_name": "Best Buyers",
	})
	if status != http.StatusCreated {
		t.Fatalf("offer2 status %d: %s", status, string(data))
	}
	offer2 := decodeAs[OfferResponse](t, data)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/offers/"+offer1.ID+"/accept/", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept offer1 status %d: %s", res.StatusCode, string(data))
	}
	accepted := decodeAs[OfferResponse](t, data)
	if accepted.Status != "accepted" {
		t.Fatalf("expected accepted, got %s", accepted.Status)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/offers/"+offer2.ID+"/accept/", nil, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second accept, got %d: %s", res.StatusCode, string(data))
	}
	wantErrorCode(t, data, "offer_conflict")

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/am/outcomes/offers/"+offer2.ID+"/", map[string]any{
		"status": "accepted",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on patch to accepted, got %d: %s", res.StatusCode, string(data))
	}

	status, data = mkOffer(map[string]any{
		"asset_hub_id": a.HubID, "source": "reo", "status": "accepted", "price": "120000", "buyer_name": "Carl",
	})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 creating accepted offer, got %d: %s", status, string(data))
	}

	// A different source holds its own accepted slot.
	status, data = mkOffer(map[string]any{
		"asset_hub_id": a.HubID, "source": "note_sale", "status": "accepted", "price": "90000", "buyer_name": "Dana Fund",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected note_sale accept to pass, got %d: %s", status, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/outcomes/offers/?asset_hub_id=1&status=accepted", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list offers status %d: %s", res.StatusCode, string(data))
	}
	page := decodeAs[paginatedOffers](t, data)
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 accepted offers across sources, got %d", len(page.Items))
	}

	// Deleting the accepted offer frees the slot.
	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/am/outcomes/offers/"+offer1.ID+"/", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete offer status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/offers/"+offer2.ID+"/accept/", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept after delete status %d: %s", res.StatusCode, string(data))
	}
}

func TestScopesLimitedToFieldworkTasks(t *testing.T) {
	srv, _ := newTestServer(t)
	a := createAsset(t, srv, map[string]any{"address": "14 Rehab Ln"})
	ensureOutcome(t, srv, "reo", a.HubID)
	marketing := createTask(t, srv, a.HubID, "reo", "marketing")
	trashout := createTask(t, srv, a.HubID, "reo", "trashout")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/reo-scopes/", map[string]any{
		"task_id": marketing.ID, "description": "Flyers", "cost": "200",
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for marketing scope, got %d: %s", res.StatusCode, string(data))
	}
	wantErrorCode(t, data, "validation_failed")

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/reo-scopes/", map[string]any{
		"task_id": trashout.ID, "description": "Full trashout", "cost": "1500.50",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create scope status %d: %s", res.StatusCode, string(data))
	}
	scope := decodeAs[ScopeResponse](t, data)
	if scope.Cost != "1500.50" || scope.TaskID != trashout.ID {
		t.Fatalf("unexpected scope: %+v", scope)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/am/outcomes/reo-scopes/"+scope.ID+"/", map[string]any{
		"cost": "1800", "completed_on": "2024-06-01",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch scope status %d: %s", res.StatusCode, string(data))
	}
	patched := decodeAs[ScopeResponse](t, data)
	if patched.Cost != "1800" {
		t.Fatalf("expected cost 1800, got %s", patched.Cost)
	}
	if patched.CompletedOn == nil || *patched.CompletedOn != "2024-06-01" {
		t.Fatalf("expected completed_on set, got %v", patched.CompletedOn)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/outcomes/reo-scopes/?task_id="+trashout.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list scopes status %d: %s", res.StatusCode, string(data))
	}
	page := decodeAs[paginatedScopes](t, data)
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 scope, got %d", len(page.Items))
	}

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/am/outcomes/reo-scopes/"+scope.ID+"/", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete scope status %d: %s", res.StatusCode, string(data))
	}
}

func TestCalendarNotesAndFollowUps(t *testing.T) {
	srv, _ := newTestServer(t)
	a := createAsset(t, srv, map[string]any{"address": "21 Diary Dr"})

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/core/calendar/events/custom/", map[string]any{
		"asset_hub_id": a.HubID, "kind": "note",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing body, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/core/calendar/events/custom/", map[string]any{
		"asset_hub_id": a.HubID, "kind": "follow_up", "body": "Chase payoff quote",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for follow-up without due_on, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/core/calendar/events/custom/", map[string]any{
		"asset_hub_id": a.HubID, "kind": "follow_up", "body": "Chase payoff quote", "due_on": "2024-06-15",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create follow-up status %d: %s", res.StatusCode, string(data))
	}
	followUp := decodeAs[CalendarEventResponse](t, data)
	if followUp.Done || followUp.DueOn == nil || *followUp.DueOn != "2024-06-15" {
		t.Fatalf("unexpected follow-up: %+v", followUp)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/core/calendar/events/custom/", map[string]any{
		"asset_hub_id": a.HubID, "kind": "note", "body": "Called borrower",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create note status %d: %s", res.StatusCode, string(data))
	}
	note := decodeAs[CalendarEventResponse](t, data)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/core/calendar/events/custom/?asset_hub_id=1&done=false", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list open entries status %d: %s", res.StatusCode, string(data))
	}
	page := decodeAs[paginatedCalendarEvents](t, data)
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 open entries, got %d", len(page.Items))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/core/calendar/events/custom/"+followUp.ID+"/", map[string]any{
		"done": true,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch follow-up status %d: %s", res.StatusCode, string(data))
	}
	closed := decodeAs[CalendarEventResponse](t, data)
	if !closed.Done {
		t.Fatalf("expected done true, got %+v", closed)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/core/calendar/events/custom/?asset_hub_id=1&kind=follow_up&done=true", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list done follow-ups status %d: %s", res.StatusCode, string(data))
	}
	page = decodeAs[paginatedCalendarEvents](t, data)
	if len(page.Items) != 1 || page.Items[0].ID != followUp.ID {
		t.Fatalf("expected the closed follow-up, got %+v", page.Items)
	}

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/core/calendar/events/custom/"+note.ID+"/", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete note status %d: %s", res.StatusCode, string(data))
	}
}

func TestBrokerDirectory(t *testing.T) {
	srv, _ := newTestServer(t)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/acq/brokers/", map[string]any{
		"kind": "vendor", "name": "CleanCo", "market": "Newark",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create vendor status %d: %s", res.StatusCode, string(data))
	}
	vendor := decodeAs[BrokerResponse](t, data)
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/acq/brokers/", map[string]any{
		"name": "Jane Realty", "firm": "Jane & Co",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create broker status %d: %s", res.StatusCode, string(data))
	}
	jane := decodeAs[BrokerResponse](t, data)
	if jane.Kind != "broker" {
		t.Fatalf("expected default kind broker, got %s", jane.Kind)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/acq/brokers/?kind=vendor", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list vendors status %d: %s", res.StatusCode, string(data))
	}
	page := decodeAs[paginatedBrokers](t, data)
	if len(page.Items) != 1 || page.Items[0].ID != vendor.ID {
		t.Fatalf("expected only the vendor, got %+v", page.Items)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/acq/brokers/"+jane.ID+"/", map[string]any{
		"firm": "Jane Partners",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch broker status %d: %s", res.StatusCode, string(data))
	}
	patched := decodeAs[BrokerResponse](t, data)
	if patched.Firm != "Jane Partners" {
		t.Fatalf("expected updated firm, got %s", patched.Firm)
	}

	// Offers pointing at unknown directory entries are refused.
	a := createAsset(t, srv, map[string]any{"address": "6 Listing Pl"})
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/offers/", map[string]any{
		"asset_hub_id": a.HubID, "source": "short_sale", "price": "50000", "broker_id": "missing-id",
	}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown broker, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/acq/brokers/"+vendor.ID+"/", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete broker status %d: %s", res.StatusCode, string(data))
	}
}

func TestValuationsSyncUnderwritingValues(t *testing.T) {
	srv, _ := newTestServer(t)
	a := createAsset(t, srv, map[string]any{"address": "70 Appraisal Ave"})

	record := func(kind, value, asOf string) {
		t.Helper()
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/valuations/", map[string]any{
			"asset_hub_id": a.HubID, "kind": kind, "value": value, "as_of": asOf,
		}, nil)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("record %s status %d: %s", kind, res.StatusCode, string(data))
		}
	}
	getAsset := func() AssetResponse {
		t.Helper()
		res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/assets/1/", nil, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("get asset status %d: %s", res.StatusCode, string(data))
		}
		return decodeAs[AssetResponse](t, data)
	}

	record("bpo_asis", "150000", "2024-01-05")
	if got := getAsset(); got.AsIsValue == nil || *got.AsIsValue != "150000" {
		t.Fatalf("expected as_is_value synced to 150000, got %v", got.AsIsValue)
	}

	// An older BPO does not roll the asset value back.
	record("bpo_asis", "140000", "2024-01-01")
	if got := getAsset(); got.AsIsValue == nil || *got.AsIsValue != "150000" {
		t.Fatalf("expected as_is_value to stay 150000, got %v", got.AsIsValue)
	}

	record("bpo_arv", "210000", "2024-01-10")
	if got := getAsset(); got.ARVValue == nil || *got.ARVValue != "210000" {
		t.Fatalf("expected arv_value synced, got %v", got.ARVValue)
	}

	// Appraisals are recorded but never touch the asset.
	record("appraisal", "999999", "2024-02-01")
	if got := getAsset(); *got.AsIsValue != "150000" || *got.ARVValue != "210000" {
		t.Fatalf("expected appraisal to leave values alone, got %v %v", *got.AsIsValue, *got.ARVValue)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/valuations/?asset_hub_id=1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list valuations status %d: %s", res.StatusCode, string(data))
	}
	var list struct {
		Items []ValuationResponse `json:"items"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal valuations: %v", err)
	}
	if len(list.Items) != 4 {
		t.Fatalf("expected 4 valuations, got %d", len(list.Items))
	}
}

func TestAssignments(t *testing.T) {
	srv, _ := newTestServer(t)
	a := createAsset(t, srv, map[string]any{"address": "31 Duty St"})

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/am/assignments/", map[string]any{
		"asset_hub_id": a.HubID, "actor_id": "ana", "duty": "asset_manager",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set assignment status %d: %s", res.StatusCode, string(data))
	}
	asg := decodeAs[AssignmentResponse](t, data)
	if asg.Duty != "asset_manager" || asg.ActorID != "ana" {
		t.Fatalf("unexpected assignment: %+v", asg)
	}

	// Same hub and actor replaces the duty.
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/am/assignments/", map[string]any{
		"asset_hub_id": a.HubID, "actor_id": "ana", "duty": "analyst",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("replace assignment status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/am/assignments/", map[string]any{
		"asset_hub_id": a.HubID, "actor_id": "bob", "duty": "broker_contact",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second actor status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/assignments/?asset_hub_id=1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list assignments status %d: %s", res.StatusCode, string(data))
	}
	var list struct {
		Items []AssignmentResponse `json:"items"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal assignments: %v", err)
	}
	if len(list.Items) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(list.Items))
	}
	for _, item := range list.Items {
		if item.ActorID == "ana" && item.Duty != "analyst" {
			t.Fatalf("expected ana re-assigned to analyst, got %s", item.Duty)
		}
	}

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/am/assignments/?asset_hub_id=1&actor_id=ana", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("clear assignment status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/am/assignments/?asset_hub_id=1", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without actor_id, got %d: %s", res.StatusCode, string(data))
	}
}

func TestTrackRegistry(t *testing.T) {
	srv, _ := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/core/tracks/", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("registry status %d: %s", res.StatusCode, string(data))
	}
	reg := decodeAs[RegistryResponse](t, data)
	if len(reg.Tracks) != 6 {
		t.Fatalf("expected 6 tracks, got %d", len(reg.Tracks))
	}
	if reg.Tracks[0].ID != "dil" {
		t.Fatalf("expected dil first, got %s", reg.Tracks[0].ID)
	}
	var reo *TrackInfoResponse
	for i := range reg.Tracks {
		if reg.Tracks[i].ID == "reo" {
			reo = &reg.Tracks[i]
		}
		if reg.Tracks[i].Badge.Label == "" || reg.Tracks[i].Badge.Tone == "" {
			t.Fatalf("missing badge for track %s", reg.Tracks[i].ID)
		}
	}
	if reo == nil {
		t.Fatal("reo track missing from registry")
	}
	if len(reo.TaskTypes) != 6 || reo.TaskTypes[0].ID != "eviction" {
		t.Fatalf("unexpected reo task types: %+v", reo.TaskTypes)
	}
	if _, ok := reg.OfferSources["reo"]; !ok {
		t.Fatalf("expected reo offer source, got %v", reg.OfferSources)
	}
	if _, ok := reg.OfferStatuses["accepted"]; !ok {
		t.Fatalf("expected accepted offer status, got %v", reg.OfferStatuses)
	}
	if len(reg.DelinquencyStatuses) == 0 {
		t.Fatal("expected delinquency statuses")
	}
}

func TestEventFeed(t *testing.T) {
	srv, _ := newTestServer(t)
	actor := map[string]string{"X-Actor-Id": "ana"}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/assets/", map[string]any{
		"address": "2 Ledger Ln",
	}, actor)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create asset status %d: %s", res.StatusCode, string(data))
	}
	a := decodeAs[AssetResponse](t, data)
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/outcomes/foreclosure/", map[string]any{
		"asset_hub_id": a.HubID,
	}, actor)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ensure outcome status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/core/events/?asset_hub_id=1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	feed := decodeAs[paginatedEvents](t, data)
	if len(feed.Items) != 2 {
		t.Fatalf("expected 2 events, got %d: %s", len(feed.Items), string(data))
	}
	if feed.Items[0].Type != "outcome.created" || feed.Items[1].Type != "asset.created" {
		t.Fatalf("expected newest-first feed, got %s then %s", feed.Items[0].Type, feed.Items[1].Type)
	}
	for _, evt := range feed.Items {
		if evt.ActorID != "ana" {
			t.Fatalf("expected actor ana, got %q", evt.ActorID)
		}
	}
	if feed.Items[1].EntityKind != "asset" || feed.Items[1].Payload["address"] != "2 Ledger Ln" {
		t.Fatalf("unexpected asset event: %+v", feed.Items[1])
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/core/events/?asset_hub_id=1&entity_kind=asset", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("filtered events status %d: %s", res.StatusCode, string(data))
	}
	feed = decodeAs[paginatedEvents](t, data)
	if len(feed.Items) != 1 || feed.Items[0].EntityKind != "asset" {
		t.Fatalf("expected only asset events, got %+v", feed.Items)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/core/events/?limit=1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("paged events status %d: %s", res.StatusCode, string(data))
	}
	feed = decodeAs[paginatedEvents](t, data)
	if len(feed.Items) != 1 || feed.NextCursor == "" {
		t.Fatalf("expected 1 event and a cursor, got %d items cursor %q", len(feed.Items), feed.NextCursor)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/core/events/?limit=1&cursor="+feed.NextCursor, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second event page status %d: %s", res.StatusCode, string(data))
	}
	next := decodeAs[paginatedEvents](t, data)
	if len(next.Items) != 1 || next.Items[0].ID >= feed.Items[0].ID {
		t.Fatalf("expected older event on next page, got %+v after %+v", next.Items, feed.Items)
	}
}

func TestAuthDisabledUsesActorHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/core/me/", nil, map[string]string{"X-Actor-Id": "ana"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("whoami status %d: %s", res.StatusCode, string(data))
	}
	me := decodeAs[WhoAmIResponse](t, data)
	if me.ActorID != "ana" {
		t.Fatalf("expected actor ana, got %s", me.ActorID)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/core/me/", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("anonymous whoami status %d: %s", res.StatusCode, string(data))
	}
	me = decodeAs[WhoAmIResponse](t, data)
	if me.ActorID != "anonymous" {
		t.Fatalf("expected anonymous, got %s", me.ActorID)
	}
}

func TestAuthEnabled(t *testing.T) {
	srv, eng := newTestServerWithAuth(t, AuthConfig{Enabled: true, JWTSecret: "test-secret"})
	ctx := context.Background()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/assets/", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d: %s", res.StatusCode, string(data))
	}
	wantErrorCode(t, data, "unauthorized")

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/healthz", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz should be open, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/core/auth/dev-login/", map[string]any{
		"actor_id": "ana",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev-login status %d: %s", res.StatusCode, string(data))
	}
	login := decodeAs[DevLoginResponse](t, data)
	if login.Token == "" {
		t.Fatal("expected a token")
	}
	bearer := map[string]string{"Authorization": "Bearer " + login.Token}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/assets/", nil, bearer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("authenticated list status %d: %s", res.StatusCode, string(data))
	}

	// No role granted yet, so writes are refused.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/assets/", map[string]any{
		"address": "1 Locked St",
	}, bearer)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without role, got %d: %s", res.StatusCode, string(data))
	}
	env := wantErrorCode(t, data, "forbidden")
	if env.Error.Details["permission"] != "assets.write" {
		t.Fatalf("expected permission detail, got %v", env.Error.Details)
	}

	if err := eng.BootstrapRBAC(ctx, "system"); err != nil {
		t.Fatalf("bootstrap rbac: %v", err)
	}
	if err := eng.GrantRole(ctx, "ana", "manager", "system"); err != nil {
		t.Fatalf("grant role: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/am/assets/", map[string]any{
		"address": "1 Unlocked St",
	}, bearer)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 with manager role, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/assets/", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d: %s", res.StatusCode, string(data))
	}

	raw, _, err := eng.CreateAPIKey(ctx, "keybot", "ci", "system")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/core/me/", nil, map[string]string{"X-Api-Key": raw})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key whoami status %d: %s", res.StatusCode, string(data))
	}
	me := decodeAs[WhoAmIResponse](t, data)
	if me.ActorID != "keybot" {
		t.Fatalf("expected keybot, got %s", me.ActorID)
	}

	// Plain actor headers carry no weight when auth is on.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/am/assets/", nil, map[string]string{"X-Actor-Id": "ana"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bare actor header, got %d: %s", res.StatusCode, string(data))
	}
}

func TestRoleGrantEndpoint(t *testing.T) {
	srv, eng := newTestServer(t)
	ctx := context.Background()
	if err := eng.BootstrapRBAC(ctx, "system"); err != nil {
		t.Fatalf("bootstrap rbac: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/core/rbac/roles/grant/", map[string]any{
		"actor_id": "ana", "role_id": "analyst",
	}, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("grant status %d: %s", res.StatusCode, string(data))
	}
	who, err := eng.WhoAmI(ctx, "ana")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if len(who.Roles) != 1 || who.Roles[0] != "analyst" {
		t.Fatalf("expected analyst role, got %v", who.Roles)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/core/rbac/roles/grant/", map[string]any{
		"actor_id": "ana", "role_id": "superuser",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/core/rbac/roles/revoke/", map[string]any{
		"actor_id": "ana", "role_id": "analyst",
	}, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke status %d: %s", res.StatusCode, string(data))
	}
	who, err = eng.WhoAmI(ctx, "ana")
	if err != nil {
		t.Fatalf("whoami after revoke: %v", err)
	}
	if len(who.Roles) != 0 {
		t.Fatalf("expected no roles, got %v", who.Roles)
	}
}

func TestAPIKeyEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/core/keys/", map[string]any{
		"actor_id": "ci-bot", "name": "deploys",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("mint key status %d: %s", res.StatusCode, string(data))
	}
	minted := decodeAs[KeyResponse](t, data)
	if minted.Key == "" || !strings.HasPrefix(minted.Key, "al_") {
		t.Fatalf("expected raw key in create response, got %q", minted.Key)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/core/keys/?actor_id=ci-bot", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list keys status %d: %s", res.StatusCode, string(data))
	}
	var list struct {
		Items []KeyResponse `json:"items"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal keys: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != minted.ID {
		t.Fatalf("expected the minted key, got %+v", list.Items)
	}
	if list.Items[0].Key != "" {
		t.Fatal("raw key must not appear in listings")
	}

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/core/keys/"+minted.ID+"/", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke key status %d: %s", res.StatusCode, string(data))
	}
}

func TestOpenAPIAndDocs(t *testing.T) {
	srv, _ := newTestServerWithAuth(t, AuthConfig{Enabled: true, JWTSecret: "test-secret"})

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d: %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), "Assetline API") {
		t.Fatalf("unexpected openapi document: %.200s", string(data))
	}
	if !strings.Contains(string(data), "bearerAuth") {
		t.Fatal("expected security schemes in openapi document")
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/docs", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("docs status %d: %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), "swagger-ui") {
		t.Fatal("expected swagger ui page")
	}
}
