package assetlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client is a typed Assetline HTTP API client.
//
// Exactly one credential is sent per request: BearerToken wins over APIKey,
// which wins over ActorID. ActorID maps to the X-Actor-Id header and only
// identifies the caller on servers running with auth disabled.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
	Logger      *slog.Logger

	mu   sync.Mutex
	hubs map[int64]*HubState
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Tracks lists the six outcome tracks in dashboard order.
var Tracks = []string{"dil", "foreclosure", "reo", "short_sale", "modification", "note_sale"}

// Asset is the API asset model. Money fields are decimal strings and stay
// nil until a value is recorded.
type Asset struct {
	HubID             int64   `json:"asset_hub_id"`
	Address           string  `json:"address"`
	City              string  `json:"city"`
	State             string  `json:"state"`
	Zip               string  `json:"zip"`
	PropertyType      string  `json:"property_type"`
	LoanNumber        string  `json:"loan_number"`
	BorrowerName      string  `json:"borrower_name"`
	UPB               *string `json:"upb"`
	TotalDebt         *string `json:"total_debt"`
	DeferredBalance   *string `json:"deferred_balance"`
	AsIsValue         *string `json:"as_is_value"`
	ARVValue          *string `json:"arv_value"`
	DelinquencyStatus string  `json:"delinquency_status"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

// Outcome is one disposition track opened on an asset.
type Outcome struct {
	ID        string `json:"id"`
	HubID     int64  `json:"asset_hub_id"`
	Track     string `json:"track"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Task is a stage task within an outcome track.
type Task struct {
	ID           string `json:"id"`
	OutcomeID    string `json:"outcome_id"`
	TaskType     string `json:"task_type"`
	Status       string `json:"status"`
	AssigneeID   string `json:"assignee_id"`
	Notes        string `json:"notes"`
	ScheduledFor string `json:"scheduled_for"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Offer is a purchase offer on an asset.
type Offer struct {
	ID         string `json:"id"`
	HubID      int64  `json:"asset_hub_id"`
	Source     string `json:"source"`
	Status     string `json:"status"`
	Price      string `json:"price"`
	BuyerName  string `json:"buyer_name"`
	BrokerID   string `json:"broker_id"`
	Notes      string `json:"notes"`
	ReceivedOn string `json:"received_on"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// Scope is a work scope attached to an REO fieldwork task.
type Scope struct {
	ID           string `json:"id"`
	TaskID       string `json:"task_id"`
	VendorID     string `json:"vendor_id"`
	Description  string `json:"description"`
	Cost         string `json:"cost"`
	ScheduledFor string `json:"scheduled_for"`
	CompletedOn  string `json:"completed_on"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// CalendarEvent is a note, follow-up, or todo pinned to an asset.
type CalendarEvent struct {
	ID           string `json:"id"`
	HubID        int64  `json:"asset_hub_id"`
	Kind         string `json:"kind"`
	Body         string `json:"body"`
	OutcomeTrack string `json:"outcome_track"`
	TaskID       string `json:"task_id"`
	DueOn        string `json:"due_on"`
	AssigneeID   string `json:"assignee_id"`
	Done         bool   `json:"done"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Broker is a directory contact: broker, vendor, or trading partner.
type Broker struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Firm      string `json:"firm"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Market    string `json:"market"`
	CreatedAt string `json:"created_at"`
}

// Valuation is a recorded BPO or appraisal value.
type Valuation struct {
	ID        string `json:"id"`
	HubID     int64  `json:"asset_hub_id"`
	Kind      string `json:"kind"`
	Value     string `json:"value"`
	AsOf      string `json:"as_of"`
	Source    string `json:"source"`
	Notes     string `json:"notes"`
	CreatedAt string `json:"created_at"`
}

// Assignment maps an actor to a duty on an asset.
type Assignment struct {
	HubID     int64  `json:"asset_hub_id"`
	ActorID   string `json:"actor_id"`
	Duty      string `json:"duty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Badge is a display label plus a color tone name.
type Badge struct {
	Label string `json:"label"`
	Tone  string `json:"tone"`
}

// TrackMetrics counts tasks within one outcome track.
type TrackMetrics struct {
	Track           string `json:"track"`
	TrackBadge      Badge  `json:"track_badge"`
	TotalTasks      int    `json:"total_tasks"`
	OpenTasks       int    `json:"open_tasks"`
	DoneTasks       int    `json:"done_tasks"`
	LatestTaskType  string `json:"latest_task_type"`
	LatestTaskBadge *Badge `json:"latest_task_badge"`
	LatestTaskAt    string `json:"latest_task_at"`
}

// HubMetrics aggregates per-track task counts for one hub.
type HubMetrics struct {
	HubID  int64          `json:"asset_hub_id"`
	Tracks []TrackMetrics `json:"tracks"`
}

// TaskType pairs a task type id with its badge.
type TaskType struct {
	ID    string `json:"id"`
	Badge Badge  `json:"badge"`
}

// TrackInfo describes one track and its ordered task types.
type TrackInfo struct {
	ID        string     `json:"id"`
	Badge     Badge      `json:"badge"`
	TaskTypes []TaskType `json:"task_types"`
}

// Registry is the static track, badge, and status vocabulary.
type Registry struct {
	Tracks              []TrackInfo      `json:"tracks"`
	OfferSources        map[string]Badge `json:"offer_sources"`
	OfferStatuses       map[string]Badge `json:"offer_statuses"`
	DelinquencyStatuses map[string]Badge `json:"delinquency_statuses"`
}

// Event is an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	HubID      int64          `json:"asset_hub_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// ActorProfile is the caller's resolved identity.
type ActorProfile struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// AssetParams carries asset fields for create and update calls. Zero fields
// are omitted, so updates leave them unchanged.
type AssetParams struct {
	Address           string `json:"address,omitempty"`
	City              string `json:"city,omitempty"`
	State             string `json:"state,omitempty"`
	Zip               string `json:"zip,omitempty"`
	PropertyType      string `json:"property_type,omitempty"`
	LoanNumber        string `json:"loan_number,omitempty"`
	BorrowerName      string `json:"borrower_name,omitempty"`
	UPB               string `json:"upb,omitempty"`
	TotalDebt         string `json:"total_debt,omitempty"`
	DeferredBalance   string `json:"deferred_balance,omitempty"`
	AsIsValue         string `json:"as_is_value,omitempty"`
	ARVValue          string `json:"arv_value,omitempty"`
	DelinquencyStatus string `json:"delinquency_status,omitempty"`
}

// AssetFilters narrow asset listings.
type AssetFilters struct {
	State             string
	PropertyType      string
	DelinquencyStatus string
	Limit             int
}

// CreateAsset creates a portfolio asset.
func (c *Client) CreateAsset(ctx context.Context, p AssetParams) (Asset, error) {
	var resp Asset
	err := c.do(ctx, http.MethodPost, "am/assets/", p, &resp)
	return resp, err
}

// Asset fetches one asset by hub id.
func (c *Client) Asset(ctx context.Context, hub int64) (Asset, error) {
	var resp Asset
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("am/assets/%d/", hub), nil, &resp)
	return resp, err
}

// Assets lists assets, newest first.
func (c *Client) Assets(ctx context.Context, f AssetFilters) ([]Asset, error) {
	q := url.Values{}
	setIf(q, "state", f.State)
	setIf(q, "property_type", f.PropertyType)
	setIf(q, "delinquency_status", f.DelinquencyStatus)
	setLimit(q, f.Limit)
	var resp struct {
		Items []Asset `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("am/assets/", q), nil, &resp)
	return resp.Items, err
}

// UpdateAsset patches asset fields.
func (c *Client) UpdateAsset(ctx context.Context, hub int64, p AssetParams) (Asset, error) {
	var resp Asset
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("am/assets/%d/", hub), p, &resp)
	return resp, err
}

// DeleteAsset removes an asset and everything recorded under it.
func (c *Client) DeleteAsset(ctx context.Context, hub int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("am/assets/%d/", hub), nil, nil)
}

// EnsureOutcome creates the outcome for a track if missing and returns it.
func (c *Client) EnsureOutcome(ctx context.Context, hub int64, track string) (Outcome, error) {
	body := map[string]any{"asset_hub_id": hub}
	var resp Outcome
	err := c.do(ctx, http.MethodPost, "am/outcomes/"+trackSlug(track)+"/", body, &resp)
	return resp, err
}

// TrackOutcomes lists outcomes for one track, optionally scoped to a hub.
func (c *Client) TrackOutcomes(ctx context.Context, track string, hub int64) ([]Outcome, error) {
	q := url.Values{}
	setHub(q, hub)
	var resp struct {
		Items []Outcome `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("am/outcomes/"+trackSlug(track)+"/", q), nil, &resp)
	return resp.Items, err
}

// Outcomes lists outcomes across all tracks for a hub.
func (c *Client) Outcomes(ctx context.Context, hub int64) ([]Outcome, error) {
	q := url.Values{}
	setHub(q, hub)
	var resp struct {
		Items []Outcome `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("am/outcomes/", q), nil, &resp)
	return resp.Items, err
}

// SetOutcomeStatus marks an outcome active or closed.
func (c *Client) SetOutcomeStatus(ctx context.Context, hub int64, track, status string) (Outcome, error) {
	body := map[string]any{"status": status}
	var resp Outcome
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("am/outcomes/%s/%d/", trackSlug(track), hub), body, &resp)
	return resp, err
}

// DeleteOutcome removes a track outcome, its tasks, and their scopes.
func (c *Client) DeleteOutcome(ctx context.Context, hub int64, track string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("am/outcomes/%s/%d/", trackSlug(track), hub), nil, nil)
}

// TaskParams creates a stage task on a hub's track.
type TaskParams struct {
	AssetHubID   int64  `json:"asset_hub_id"`
	Track        string `json:"track"`
	TaskType     string `json:"task_type"`
	AssigneeID   string `json:"assignee_id,omitempty"`
	Notes        string `json:"notes,omitempty"`
	ScheduledFor string `json:"scheduled_for,omitempty"`
}

// TaskUpdate patches a task. Zero fields are left unchanged.
type TaskUpdate struct {
	TaskType     string `json:"task_type,omitempty"`
	Status       string `json:"status,omitempty"`
	AssigneeID   string `json:"assignee_id,omitempty"`
	Notes        string `json:"notes,omitempty"`
	ScheduledFor string `json:"scheduled_for,omitempty"`
}

// TaskFilters narrow task listings.
type TaskFilters struct {
	AssetHubID int64
	OutcomeID  string
	Track      string
	TaskType   string
	Status     string
	AssigneeID string
	Limit      int
}

// CreateTask creates a stage task. The track's outcome must already exist.
func (c *Client) CreateTask(ctx context.Context, p TaskParams) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "am/outcomes/tasks/", p, &resp)
	return resp, err
}

// Tasks lists stage tasks.
func (c *Client) Tasks(ctx context.Context, f TaskFilters) ([]Task, error) {
	q := url.Values{}
	setHub(q, f.AssetHubID)
	setIf(q, "outcome_id", f.OutcomeID)
	setIf(q, "track", f.Track)
	setIf(q, "task_type", f.TaskType)
	setIf(q, "status", f.Status)
	setIf(q, "assignee_id", f.AssigneeID)
	setLimit(q, f.Limit)
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("am/outcomes/tasks/", q), nil, &resp)
	return resp.Items, err
}

// UpdateTask patches a stage task.
func (c *Client) UpdateTask(ctx context.Context, id string, p TaskUpdate) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "am/outcomes/tasks/"+url.PathEscape(id)+"/", p, &resp)
	return resp, err
}

// DeleteTask removes a stage task and its scopes.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "am/outcomes/tasks/"+url.PathEscape(id)+"/", nil, nil)
}

// OfferParams creates a purchase offer.
type OfferParams struct {
	AssetHubID int64  `json:"asset_hub_id"`
	Source     string `json:"source"`
	Status     string `json:"status,omitempty"`
	Price      string `json:"price"`
	BuyerName  string `json:"buyer_name,omitempty"`
	BrokerID   string `json:"broker_id,omitempty"`
	Notes      string `json:"notes,omitempty"`
	ReceivedOn string `json:"received_on,omitempty"`
}

// OfferUpdate patches an offer. Zero fields are left unchanged.
type OfferUpdate struct {
	Status     string `json:"status,omitempty"`
	Price      string `json:"price,omitempty"`
	BuyerName  string `json:"buyer_name,omitempty"`
	BrokerID   string `json:"broker_id,omitempty"`
	Notes      string `json:"notes,omitempty"`
	ReceivedOn string `json:"received_on,omitempty"`
}

// OfferFilters narrow offer listings.
type OfferFilters struct {
	AssetHubID int64
	Source     string
	Status     string
	Limit      int
}

// CreateOffer records a purchase offer.
func (c *Client) CreateOffer(ctx context.Context, p OfferParams) (Offer, error) {
	var resp Offer
	err := c.do(ctx, http.MethodPost, "am/outcomes/offers/", p, &resp)
	return resp, err
}

// Offers lists purchase offers.
func (c *Client) Offers(ctx context.Context, f OfferFilters) ([]Offer, error) {
	q := url.Values{}
	setHub(q, f.AssetHubID)
	setIf(q, "source", f.Source)
	setIf(q, "status", f.Status)
	setLimit(q, f.Limit)
	var resp struct {
		Items []Offer `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("am/outcomes/offers/", q), nil, &resp)
	return resp.Items, err
}

// UpdateOffer patches an offer.
func (c *Client) UpdateOffer(ctx context.Context, id string, p OfferUpdate) (Offer, error) {
	var resp Offer
	err := c.do(ctx, http.MethodPatch, "am/outcomes/offers/"+url.PathEscape(id)+"/", p, &resp)
	return resp, err
}

// AcceptOffer marks an offer accepted. At most one offer per asset and
// source may hold that status.
func (c *Client) AcceptOffer(ctx context.Context, id string) (Offer, error) {
	var resp Offer
	err := c.do(ctx, http.MethodPost, "am/outcomes/offers/"+url.PathEscape(id)+"/accept/", nil, &resp)
	return resp, err
}

// DeleteOffer removes an offer.
func (c *Client) DeleteOffer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "am/outcomes/offers/"+url.PathEscape(id)+"/", nil, nil)
}

// ScopeParams creates a work scope under an REO fieldwork task.
type ScopeParams struct {
	TaskID       string `json:"task_id"`
	VendorID     string `json:"vendor_id,omitempty"`
	Description  string `json:"description"`
	Cost         string `json:"cost"`
	ScheduledFor string `json:"scheduled_for,omitempty"`
}

// ScopeUpdate patches a scope. Zero fields are left unchanged.
type ScopeUpdate struct {
	VendorID     string `json:"vendor_id,omitempty"`
	Description  string `json:"description,omitempty"`
	Cost         string `json:"cost,omitempty"`
	ScheduledFor string `json:"scheduled_for,omitempty"`
	CompletedOn  string `json:"completed_on,omitempty"`
}

// ScopeFilters narrow scope listings.
type ScopeFilters struct {
	TaskID     string
	AssetHubID int64
	Limit      int
}

// CreateScope records a work scope on a trashout or renovation task.
func (c *Client) CreateScope(ctx context.Context, p ScopeParams) (Scope, error) {
	var resp Scope
	err := c.do(ctx, http.MethodPost, "am/outcomes/reo-scopes/", p, &resp)
	return resp, err
}

// Scopes lists work scopes.
func (c *Client) Scopes(ctx context.Context, f ScopeFilters) ([]Scope, error) {
	q := url.Values{}
	setIf(q, "task_id", f.TaskID)
	setHub(q, f.AssetHubID)
	setLimit(q, f.Limit)
	var resp struct {
		Items []Scope `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("am/outcomes/reo-scopes/", q), nil, &resp)
	return resp.Items, err
}

// UpdateScope patches a work scope.
func (c *Client) UpdateScope(ctx context.Context, id string, p ScopeUpdate) (Scope, error) {
	var resp Scope
	err := c.do(ctx, http.MethodPatch, "am/outcomes/reo-scopes/"+url.PathEscape(id)+"/", p, &resp)
	return resp, err
}

// DeleteScope removes a work scope.
func (c *Client) DeleteScope(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "am/outcomes/reo-scopes/"+url.PathEscape(id)+"/", nil, nil)
}

// TaskMetrics fetches per-track task counts for one hub.
func (c *Client) TaskMetrics(ctx context.Context, hub int64) (HubMetrics, error) {
	q := url.Values{}
	setHub(q, hub)
	var resp HubMetrics
	err := c.do(ctx, http.MethodGet, withQuery("am/outcomes/task-metrics/", q), nil, &resp)
	return resp, err
}

// CalendarEventParams creates a note, follow-up, or todo.
type CalendarEventParams struct {
	AssetHubID   int64  `json:"asset_hub_id"`
	Kind         string `json:"kind"`
	Body         string `json:"body"`
	OutcomeTrack string `json:"outcome_track,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
	DueOn        string `json:"due_on,omitempty"`
	AssigneeID   string `json:"assignee_id,omitempty"`
}

// CalendarEventUpdate patches a calendar entry. Zero fields are left
// unchanged; Done toggles completion when set.
type CalendarEventUpdate struct {
	Body       string `json:"body,omitempty"`
	DueOn      string `json:"due_on,omitempty"`
	AssigneeID string `json:"assignee_id,omitempty"`
	Done       *bool  `json:"done,omitempty"`
}

// CalendarEventFilters narrow calendar listings. Done takes "true" or
// "false"; empty matches both.
type CalendarEventFilters struct {
	AssetHubID int64
	Kind       string
	AssigneeID string
	Done       string
	DueBefore  string
	Limit      int
}

// CreateCalendarEvent records a note, follow-up, or todo on an asset.
func (c *Client) CreateCalendarEvent(ctx context.Context, p CalendarEventParams) (CalendarEvent, error) {
	var resp CalendarEvent
	err := c.do(ctx, http.MethodPost, "core/calendar/events/custom/", p, &resp)
	return resp, err
}

// CalendarEvents lists calendar entries.
func (c *Client) CalendarEvents(ctx context.Context, f CalendarEventFilters) ([]CalendarEvent, error) {
	q := url.Values{}
	setHub(q, f.AssetHubID)
	setIf(q, "kind", f.Kind)
	setIf(q, "assignee_id", f.AssigneeID)
	setIf(q, "done", f.Done)
	setIf(q, "due_before", f.DueBefore)
	setLimit(q, f.Limit)
	var resp struct {
		Items []CalendarEvent `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("core/calendar/events/custom/", q), nil, &resp)
	return resp.Items, err
}

// UpdateCalendarEvent patches a calendar entry.
func (c *Client) UpdateCalendarEvent(ctx context.Context, id string, p CalendarEventUpdate) (CalendarEvent, error) {
	var resp CalendarEvent
	err := c.do(ctx, http.MethodPatch, "core/calendar/events/custom/"+url.PathEscape(id)+"/", p, &resp)
	return resp, err
}

// DeleteCalendarEvent removes a calendar entry.
func (c *Client) DeleteCalendarEvent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "core/calendar/events/custom/"+url.PathEscape(id)+"/", nil, nil)
}

// BrokerParams creates a directory contact. Kind defaults to "broker".
type BrokerParams struct {
	Kind   string `json:"kind,omitempty"`
	Name   string `json:"name"`
	Firm   string `json:"firm,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Market string `json:"market,omitempty"`
}

// BrokerUpdate patches a directory contact. Zero fields are left unchanged.
type BrokerUpdate struct {
	Name   string `json:"name,omitempty"`
	Firm   string `json:"firm,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Market string `json:"market,omitempty"`
}

// BrokerFilters narrow directory listings.
type BrokerFilters struct {
	Kind   string
	Market string
	Limit  int
}

// CreateBroker adds a directory contact.
func (c *Client) CreateBroker(ctx context.Context, p BrokerParams) (Broker, error) {
	var resp Broker
	err := c.do(ctx, http.MethodPost, "acq/brokers/", p, &resp)
	return resp, err
}

// Broker fetches one directory contact.
func (c *Client) Broker(ctx context.Context, id string) (Broker, error) {
	var resp Broker
	err := c.do(ctx, http.MethodGet, "acq/brokers/"+url.PathEscape(id)+"/", nil, &resp)
	return resp, err
}

// Brokers lists directory contacts.
func (c *Client) Brokers(ctx context.Context, f BrokerFilters) ([]Broker, error) {
	q := url.Values{}
	setIf(q, "kind", f.Kind)
	setIf(q, "market", f.Market)
	setLimit(q, f.Limit)
	var resp struct {
		Items []Broker `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("acq/brokers/", q), nil, &resp)
	return resp.Items, err
}

// UpdateBroker patches a directory contact.
func (c *Client) UpdateBroker(ctx context.Context, id string, p BrokerUpdate) (Broker, error) {
	var resp Broker
	err := c.do(ctx, http.MethodPatch, "acq/brokers/"+url.PathEscape(id)+"/", p, &resp)
	return resp, err
}

// DeleteBroker removes a directory contact.
func (c *Client) DeleteBroker(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "acq/brokers/"+url.PathEscape(id)+"/", nil, nil)
}

// ValuationParams records a valuation.
type ValuationParams struct {
	AssetHubID int64  `json:"asset_hub_id"`
	Kind       string `json:"kind"`
	Value      string `json:"value"`
	AsOf       string `json:"as_of"`
	Source     string `json:"source,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// ValuationFilters narrow valuation listings.
type ValuationFilters struct {
	AssetHubID int64
	Kind       string
	Limit      int
}

// RecordValuation appends a valuation. BPO values roll forward onto the
// asset's underwriting fields when newer.
func (c *Client) RecordValuation(ctx context.Context, p ValuationParams) (Valuation, error) {
	var resp Valuation
	err := c.do(ctx, http.MethodPost, "am/valuations/", p, &resp)
	return resp, err
}

// Valuations lists recorded valuations, newest as-of first.
func (c *Client) Valuations(ctx context.Context, f ValuationFilters) ([]Valuation, error) {
	q := url.Values{}
	setHub(q, f.AssetHubID)
	setIf(q, "kind", f.Kind)
	setLimit(q, f.Limit)
	var resp struct {
		Items []Valuation `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("am/valuations/", q), nil, &resp)
	return resp.Items, err
}

// SetAssignment assigns an actor to a duty on an asset, replacing any
// previous duty that actor held there.
func (c *Client) SetAssignment(ctx context.Context, hub int64, actorID, duty string) (Assignment, error) {
	body := map[string]any{
		"asset_hub_id": hub,
		"actor_id":     actorID,
		"duty":         duty,
	}
	var resp Assignment
	err := c.do(ctx, http.MethodPut, "am/assignments/", body, &resp)
	return resp, err
}

// Assignments lists duty assignments for a hub.
func (c *Client) Assignments(ctx context.Context, hub int64) ([]Assignment, error) {
	q := url.Values{}
	setHub(q, hub)
	var resp struct {
		Items []Assignment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("am/assignments/", q), nil, &resp)
	return resp.Items, err
}

// ClearAssignment removes an actor's duty assignment on an asset.
func (c *Client) ClearAssignment(ctx context.Context, hub int64, actorID string) error {
	q := url.Values{}
	setHub(q, hub)
	setIf(q, "actor_id", actorID)
	return c.do(ctx, http.MethodDelete, withQuery("am/assignments/", q), nil, nil)
}

// Registry fetches the track, badge, and status vocabulary.
func (c *Client) Registry(ctx context.Context) (Registry, error) {
	var resp Registry
	err := c.do(ctx, http.MethodGet, "core/tracks/", nil, &resp)
	return resp, err
}

// Events returns recent audit events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated audit event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	setLimit(q, limit)
	setIf(q, "cursor", cursor)
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("core/events/", q), nil, &resp)
	return resp, err
}

// WhoAmI returns the caller's identity, roles, and permissions.
func (c *Client) WhoAmI(ctx context.Context) (ActorProfile, error) {
	var resp ActorProfile
	err := c.do(ctx, http.MethodGet, "core/me/", nil, &resp)
	return resp, err
}

// DevLogin mints a short-lived bearer token from a dev-mode server.
func (c *Client) DevLogin(ctx context.Context, actorID string, roles []string) (string, error) {
	body := map[string]any{"actor_id": actorID}
	if len(roles) > 0 {
		body["roles"] = roles
	}
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "core/auth/dev-login/", body, &resp)
	return resp.Token, err
}

// HubState is the hydrated outcome visibility for one asset hub.
type HubState struct {
	HubID    int64
	Visible  []string           // tracks with an outcome, dashboard order
	Outcomes map[string]Outcome // keyed by track
	Tasks    map[string][]Task  // prefetched per visible track
}

// IsVisible reports whether the hub has an outcome on the track.
func (s *HubState) IsVisible(track string) bool {
	_, ok := s.Outcomes[track]
	return ok
}

// Hydrate resolves which outcome tracks exist for a hub. All six tracks are
// probed in parallel; each present track also prefetches its task list. A
// track whose probe or prefetch fails is logged and left hidden while the
// remaining tracks still settle. The result is cached per hub until
// Invalidate.
func (c *Client) Hydrate(ctx context.Context, hub int64) *HubState {
	c.mu.Lock()
	if st, ok := c.hubs[hub]; ok {
		c.mu.Unlock()
		return st
	}
	c.mu.Unlock()

	st := &HubState{
		HubID:    hub,
		Outcomes: map[string]Outcome{},
		Tasks:    map[string][]Task{},
	}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, tr := range Tracks {
		wg.Add(1)
		go func(tr string) {
			defer wg.Done()
			outcomes, err := c.TrackOutcomes(ctx, tr, hub)
			if err != nil {
				c.logger().Warn("hydrate: track probe failed", "hub", hub, "track", tr, "error", err)
				return
			}
			if len(outcomes) == 0 {
				return
			}
			tasks, err := c.Tasks(ctx, TaskFilters{OutcomeID: outcomes[0].ID})
			if err != nil {
				c.logger().Warn("hydrate: task prefetch failed", "hub", hub, "track", tr, "error", err)
				return
			}
			mu.Lock()
			st.Outcomes[tr] = outcomes[0]
			st.Tasks[tr] = tasks
			mu.Unlock()
		}(tr)
	}
	wg.Wait()
	for _, tr := range Tracks {
		if _, ok := st.Outcomes[tr]; ok {
			st.Visible = append(st.Visible, tr)
		}
	}

	c.mu.Lock()
	if c.hubs == nil {
		c.hubs = make(map[int64]*HubState)
	}
	c.hubs[hub] = st
	c.mu.Unlock()
	return st
}

// Invalidate drops the cached hydration for a hub.
func (c *Client) Invalidate(hub int64) {
	c.mu.Lock()
	delete(c.hubs, hub)
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func trackSlug(t string) string {
	return strings.ReplaceAll(t, "_", "-")
}

func setIf(q url.Values, key, val string) {
	if val != "" {
		q.Set(key, val)
	}
}

func setHub(q url.Values, hub int64) {
	if hub > 0 {
		q.Set("asset_hub_id", strconv.FormatInt(hub, 10))
	}
}

func setLimit(q url.Values, limit int) {
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
