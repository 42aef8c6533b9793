package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"assetline/internal/domain"
	"assetline/internal/track"
)

// HubID is an asset hub identifier. The dashboard client sends it as either a
// JSON number or a numeric string, so both are accepted.
type HubID int64

func (h *HubID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid asset_hub_id %q", s)
		}
		*h = HubID(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*h = HubID(v)
	return nil
}

func (h HubID) Schema(r huma.Registry) *huma.Schema {
	return &huma.Schema{OneOf: []*huma.Schema{
		{Type: huma.TypeInteger},
		{Type: huma.TypeString, Pattern: `^[0-9]+$`},
	}}
}

// Money is a decimal amount on the wire. Values arrive as strings or bare
// numbers and are kept as text until parsed, so no float rounding sneaks in.
type Money string

func (m *Money) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*m = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*m = Money(strings.TrimSpace(s))
		return nil
	}
	*m = Money(trimmed)
	return nil
}

func (m Money) Schema(r huma.Registry) *huma.Schema {
	return &huma.Schema{
		OneOf: []*huma.Schema{
			{Type: huma.TypeString},
			{Type: huma.TypeNumber},
		},
		// Null clears the amount on updates.
		Nullable: true,
	}
}

func (m Money) Decimal() (decimal.Decimal, error) {
	if m == "" {
		return decimal.Decimal{}, errors.New("amount is required")
	}
	d, err := decimal.NewFromString(string(m))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", string(m))
	}
	return d, nil
}

func (m Money) NullDecimal() (decimal.NullDecimal, error) {
	if m == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := m.Decimal()
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// Request payloads

type CreateAssetRequest struct {
	Address           string `json:"address,omitempty"`
	City              string `json:"city,omitempty"`
	State             string `json:"state,omitempty"`
	Zip               string `json:"zip,omitempty"`
	PropertyType      string `json:"property_type,omitempty"`
	LoanNumber        string `json:"loan_number,omitempty"`
	BorrowerName      string `json:"borrower_name,omitempty"`
	UPB               *Money `json:"upb,omitempty"`
	TotalDebt         *Money `json:"total_debt,omitempty"`
	DeferredBalance   *Money `json:"deferred_balance,omitempty"`
	AsIsValue         *Money `json:"as_is_value,omitempty"`
	ARVValue          *Money `json:"arv_value,omitempty"`
	DelinquencyStatus string `json:"delinquency_status,omitempty"`
}

// Update payloads treat an absent key and an explicit null differently: absent
// leaves the field alone, null clears it. Clearable fields are marked nullable
// so a null survives schema validation and reaches the handler.

type UpdateAssetRequest struct {
	Address           *string `json:"address,omitempty" nullable:"true"`
	City              *string `json:"city,omitempty" nullable:"true"`
	State             *string `json:"state,omitempty" nullable:"true"`
	Zip               *string `json:"zip,omitempty" nullable:"true"`
	PropertyType      *string `json:"property_type,omitempty" nullable:"true"`
	LoanNumber        *string `json:"loan_number,omitempty" nullable:"true"`
	BorrowerName      *string `json:"borrower_name,omitempty" nullable:"true"`
	UPB               *Money  `json:"upb,omitempty"`
	TotalDebt         *Money  `json:"total_debt,omitempty"`
	DeferredBalance   *Money  `json:"deferred_balance,omitempty"`
	AsIsValue         *Money  `json:"as_is_value,omitempty"`
	ARVValue          *Money  `json:"arv_value,omitempty"`
	DelinquencyStatus *string `json:"delinquency_status,omitempty" nullable:"true"`
}

type EnsureOutcomeRequest struct {
	AssetHubID HubID `json:"asset_hub_id"`
}

type UpdateOutcomeRequest struct {
	Status string `json:"status" enum:"active,closed"`
}

type CreateTaskRequest struct {
	AssetHubID   HubID   `json:"asset_hub_id"`
	Track        string  `json:"track"`
	TaskType     string  `json:"task_type"`
	AssigneeID   *string `json:"assignee_id,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	ScheduledFor *string `json:"scheduled_for,omitempty" format:"date"`
}

type UpdateTaskRequest struct {
	TaskType     *string `json:"task_type,omitempty"`
	Status       *string `json:"status,omitempty" enum:"open,done"`
	AssigneeID   *string `json:"assignee_id,omitempty" nullable:"true"`
	Notes        *string `json:"notes,omitempty" nullable:"true"`
	ScheduledFor *string `json:"scheduled_for,omitempty" format:"date" nullable:"true"`
}

type CreateOfferRequest struct {
	AssetHubID HubID   `json:"asset_hub_id"`
	Source     string  `json:"source" enum:"short_sale,reo,note_sale"`
	Status     string  `json:"status,omitempty" enum:"pending,accepted,rejected,countered,withdrawn"`
	Price      Money   `json:"price"`
	BuyerName  string  `json:"buyer_name,omitempty"`
	BrokerID   *string `json:"broker_id,omitempty"`
	Notes      string  `json:"notes,omitempty"`
	ReceivedOn *string `json:"received_on,omitempty" format:"date"`
}

type UpdateOfferRequest struct {
	Status     *string `json:"status,omitempty" enum:"pending,accepted,rejected,countered,withdrawn"`
	Price      *Money  `json:"price,omitempty"`
	BuyerName  *string `json:"buyer_name,omitempty" nullable:"true"`
	BrokerID   *string `json:"broker_id,omitempty" nullable:"true"`
	Notes      *string `json:"notes,omitempty" nullable:"true"`
	ReceivedOn *string `json:"received_on,omitempty" format:"date" nullable:"true"`
}

type CreateScopeRequest struct {
	TaskID       string  `json:"task_id"`
	VendorID     *string `json:"vendor_id,omitempty"`
	Description  string  `json:"description"`
	Cost         Money   `json:"cost"`
	ScheduledFor *string `json:"scheduled_for,omitempty" format:"date"`
}

type UpdateScopeRequest struct {
	VendorID     *string `json:"vendor_id,omitempty" nullable:"true"`
	Description  *string `json:"description,omitempty" nullable:"true"`
	Cost         *Money  `json:"cost,omitempty"`
	ScheduledFor *string `json:"scheduled_for,omitempty" format:"date" nullable:"true"`
	CompletedOn  *string `json:"completed_on,omitempty" format:"date" nullable:"true"`
}

type CreateCalendarEventRequest struct {
	AssetHubID   HubID   `json:"asset_hub_id"`
	Kind         string  `json:"kind" enum:"note,follow_up,todo"`
	Body         string  `json:"body"`
	OutcomeTrack *string `json:"outcome_track,omitempty"`
	TaskID       *string `json:"task_id,omitempty"`
	DueOn        *string `json:"due_on,omitempty" format:"date"`
	AssigneeID   *string `json:"assignee_id,omitempty"`
}

type UpdateCalendarEventRequest struct {
	Body       *string `json:"body,omitempty" nullable:"true"`
	DueOn      *string `json:"due_on,omitempty" format:"date" nullable:"true"`
	AssigneeID *string `json:"assignee_id,omitempty" nullable:"true"`
	Done       *bool   `json:"done,omitempty" nullable:"true"`
}

type CreateBrokerRequest struct {
	Kind   string `json:"kind,omitempty" enum:"broker,vendor,trading_partner"`
	Name   string `json:"name"`
	Firm   string `json:"firm,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Market string `json:"market,omitempty"`
}

type UpdateBrokerRequest struct {
	Name   *string `json:"name,omitempty"`
	Firm   *string `json:"firm,omitempty" nullable:"true"`
	Email  *string `json:"email,omitempty" nullable:"true"`
	Phone  *string `json:"phone,omitempty" nullable:"true"`
	Market *string `json:"market,omitempty" nullable:"true"`
}

type CreateValuationRequest struct {
	AssetHubID HubID  `json:"asset_hub_id"`
	Kind       string `json:"kind" enum:"bpo_asis,bpo_arv,appraisal"`
	Value      Money  `json:"value"`
	AsOf       string `json:"as_of" format:"date"`
	Source     string `json:"source,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type SetAssignmentRequest struct {
	AssetHubID HubID  `json:"asset_hub_id"`
	ActorID    string `json:"actor_id"`
	Duty       string `json:"duty" enum:"asset_manager,analyst,broker_contact"`
}

type RoleChangeRequest struct {
	ActorID string `json:"actor_id"`
	RoleID  string `json:"role_id"`
}

type CreateKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

// Response payloads

type AssetResponse struct {
	HubID             int64   `json:"asset_hub_id"`
	Address           string  `json:"address,omitempty"`
	City              string  `json:"city,omitempty"`
	State             string  `json:"state,omitempty"`
	Zip               string  `json:"zip,omitempty"`
	PropertyType      string  `json:"property_type,omitempty"`
	LoanNumber        string  `json:"loan_number,omitempty"`
	BorrowerName      string  `json:"borrower_name,omitempty"`
	UPB               *string `json:"upb"`
	TotalDebt         *string `json:"total_debt"`
	DeferredBalance   *string `json:"deferred_balance"`
	AsIsValue         *string `json:"as_is_value"`
	ARVValue          *string `json:"arv_value"`
	DelinquencyStatus string  `json:"delinquency_status,omitempty"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
}

type OutcomeResponse struct {
	ID        string `json:"id"`
	HubID     int64  `json:"asset_hub_id"`
	Track     string `json:"track" enum:"dil,foreclosure,reo,short_sale,modification,note_sale"`
	Status    string `json:"status" enum:"active,closed"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type TaskResponse struct {
	ID           string  `json:"id"`
	OutcomeID    string  `json:"outcome_id"`
	TaskType     string  `json:"task_type"`
	Status       string  `json:"status" enum:"open,done"`
	AssigneeID   *string `json:"assignee_id,omitempty"`
	Notes        string  `json:"notes,omitempty"`
	ScheduledFor *string `json:"scheduled_for,omitempty" format:"date"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type OfferResponse struct {
	ID         string  `json:"id"`
	HubID      int64   `json:"asset_hub_id"`
	Source     string  `json:"source" enum:"short_sale,reo,note_sale"`
	Status     string  `json:"status" enum:"pending,accepted,rejected,countered,withdrawn"`
	Price      string  `json:"price"`
	BuyerName  string  `json:"buyer_name,omitempty"`
	BrokerID   *string `json:"broker_id,omitempty"`
	Notes      string  `json:"notes,omitempty"`
	ReceivedOn *string `json:"received_on,omitempty" format:"date"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	UpdatedAt  string  `json:"updated_at" format:"date-time"`
}

type ScopeResponse struct {
	ID           string  `json:"id"`
	TaskID       string  `json:"task_id"`
	VendorID     *string `json:"vendor_id,omitempty"`
	Description  string  `json:"description"`
	Cost         string  `json:"cost"`
	ScheduledFor *string `json:"scheduled_for,omitempty" format:"date"`
	CompletedOn  *string `json:"completed_on,omitempty" format:"date"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type CalendarEventResponse struct {
	ID           string  `json:"id"`
	HubID        int64   `json:"asset_hub_id"`
	Kind         string  `json:"kind" enum:"note,follow_up,todo"`
	Body         string  `json:"body"`
	OutcomeTrack *string `json:"outcome_track,omitempty"`
	TaskID       *string `json:"task_id,omitempty"`
	DueOn        *string `json:"due_on,omitempty" format:"date"`
	AssigneeID   *string `json:"assignee_id,omitempty"`
	Done         bool    `json:"done"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type BrokerResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind" enum:"broker,vendor,trading_partner"`
	Name      string `json:"name"`
	Firm      string `json:"firm,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Market    string `json:"market,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ValuationResponse struct {
	ID        string `json:"id"`
	HubID     int64  `json:"asset_hub_id"`
	Kind      string `json:"kind" enum:"bpo_asis,bpo_arv,appraisal"`
	Value     string `json:"value"`
	AsOf      string `json:"as_of" format:"date"`
	Source    string `json:"source,omitempty"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type AssignmentResponse struct {
	HubID     int64  `json:"asset_hub_id"`
	ActorID   string `json:"actor_id"`
	Duty      string `json:"duty" enum:"asset_manager,analyst,broker_contact"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type BadgeResponse struct {
	Label string `json:"label"`
	Tone  string `json:"tone"`
}

type TrackMetricsResponse struct {
	Track           string         `json:"track"`
	TrackBadge      BadgeResponse  `json:"track_badge"`
	TotalTasks      int            `json:"total_tasks"`
	OpenTasks       int            `json:"open_tasks"`
	DoneTasks       int            `json:"done_tasks"`
	LatestTaskType  string         `json:"latest_task_type,omitempty"`
	LatestTaskBadge *BadgeResponse `json:"latest_task_badge,omitempty"`
	LatestTaskAt    *string        `json:"latest_task_at,omitempty" format:"date-time"`
}

type TaskTypeResponse struct {
	ID    string        `json:"id"`
	Badge BadgeResponse `json:"badge"`
}

type TrackInfoResponse struct {
	ID        string             `json:"id"`
	Badge     BadgeResponse      `json:"badge"`
	TaskTypes []TaskTypeResponse `json:"task_types"`
}

type RegistryResponse struct {
	Tracks              []TrackInfoResponse      `json:"tracks"`
	OfferSources        map[string]BadgeResponse `json:"offer_sources"`
	OfferStatuses       map[string]BadgeResponse `json:"offer_statuses"`
	DelinquencyStatuses map[string]BadgeResponse `json:"delinquency_statuses"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	HubID      int64          `json:"asset_hub_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type KeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type paginatedAssets struct {
	Items      []AssetResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type paginatedOutcomes struct {
	Items      []OutcomeResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedOffers struct {
	Items      []OfferResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type paginatedScopes struct {
	Items      []ScopeResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type paginatedCalendarEvents struct {
	Items      []CalendarEventResponse `json:"items"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

type paginatedBrokers struct {
	Items      []BrokerResponse `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func assetResponse(a domain.Asset) AssetResponse {
	return AssetResponse{
		HubID:             a.HubID,
		Address:           a.Address,
		City:              a.City,
		State:             a.State,
		Zip:               a.Zip,
		PropertyType:      a.PropertyType,
		LoanNumber:        a.LoanNumber,
		BorrowerName:      a.BorrowerName,
		UPB:               nullMoney(a.UPB),
		TotalDebt:         nullMoney(a.TotalDebt),
		DeferredBalance:   nullMoney(a.DeferredBalance),
		AsIsValue:         nullMoney(a.AsIsValue),
		ARVValue:          nullMoney(a.ARVValue),
		DelinquencyStatus: a.DelinquencyStatus,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func outcomeResponse(o domain.Outcome) OutcomeResponse {
	return OutcomeResponse(o)
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse(t)
}

func offerResponse(o domain.Offer) OfferResponse {
	return OfferResponse{
		ID:         o.ID,
		HubID:      o.HubID,
		Source:     o.Source,
		Status:     o.Status,
		Price:      o.Price.String(),
		BuyerName:  o.BuyerName,
		BrokerID:   o.BrokerID,
		Notes:      o.Notes,
		ReceivedOn: o.ReceivedOn,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func scopeResponse(s domain.Scope) ScopeResponse {
	return ScopeResponse{
		ID:           s.ID,
		TaskID:       s.TaskID,
		VendorID:     s.VendorID,
		Description:  s.Description,
		Cost:         s.Cost.String(),
		ScheduledFor: s.ScheduledFor,
		CompletedOn:  s.CompletedOn,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func calendarEventResponse(ce domain.CalendarEvent) CalendarEventResponse {
	return CalendarEventResponse(ce)
}

func brokerResponse(b domain.Broker) BrokerResponse {
	return BrokerResponse(b)
}

func valuationResponse(v domain.Valuation) ValuationResponse {
	return ValuationResponse{
		ID:        v.ID,
		HubID:     v.HubID,
		Kind:      v.Kind,
		Value:     v.Value.String(),
		AsOf:      v.AsOf,
		Source:    v.Source,
		Notes:     v.Notes,
		CreatedAt: v.CreatedAt,
	}
}

func assignmentResponse(a domain.Assignment) AssignmentResponse {
	return AssignmentResponse(a)
}

func badgeResponse(b track.Badge) BadgeResponse {
	return BadgeResponse(b)
}

func metricsResponse(m domain.TrackMetrics) TrackMetricsResponse {
	resp := TrackMetricsResponse{
		Track:          m.Track,
		TrackBadge:     badgeResponse(track.TrackBadge(m.Track)),
		TotalTasks:     m.TotalTasks,
		OpenTasks:      m.OpenTasks,
		DoneTasks:      m.DoneTasks,
		LatestTaskType: m.LatestTaskType,
		LatestTaskAt:   m.LatestTaskAt,
	}
	if m.LatestTaskType != "" {
		b := badgeResponse(track.TaskBadge(m.LatestTaskType))
		resp.LatestTaskBadge = &b
	}
	return resp
}

func registryResponse() RegistryResponse {
	res := RegistryResponse{
		OfferSources:        map[string]BadgeResponse{},
		OfferStatuses:       map[string]BadgeResponse{},
		DelinquencyStatuses: map[string]BadgeResponse{},
	}
	for _, t := range track.All() {
		info := TrackInfoResponse{ID: t, Badge: badgeResponse(track.TrackBadge(t))}
		for _, tt := range track.TaskTypes(t) {
			info.TaskTypes = append(info.TaskTypes, TaskTypeResponse{ID: tt, Badge: badgeResponse(track.TaskBadge(tt))})
		}
		res.Tracks = append(res.Tracks, info)
	}
	for _, s := range track.OfferSources() {
		res.OfferSources[s] = badgeResponse(track.OfferSourceBadge(s))
	}
	for _, s := range track.OfferStatuses() {
		res.OfferStatuses[s] = badgeResponse(track.OfferStatusBadge(s))
	}
	for _, s := range track.DelinquencyStatuses() {
		res.DelinquencyStatuses[s] = badgeResponse(track.DelinquencyBadge(s))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		HubID:      e.HubID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func nullMoney(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
