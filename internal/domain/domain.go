package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

type Asset struct {
	HubID             int64               `json:"asset_hub_id"`
	Address           string              `json:"address"`
	City              string              `json:"city,omitempty"`
	State             string              `json:"state,omitempty"`
	Zip               string              `json:"zip,omitempty"`
	PropertyType      string              `json:"property_type,omitempty"`
	LoanNumber        string              `json:"loan_number,omitempty"`
	BorrowerName      string              `json:"borrower_name,omitempty"`
	UPB               decimal.NullDecimal `json:"upb"`
	TotalDebt         decimal.NullDecimal `json:"total_debt"`
	DeferredBalance   decimal.NullDecimal `json:"deferred_balance"`
	DelinquencyStatus string              `json:"delinquency_status,omitempty"`
	AsIsValue         decimal.NullDecimal `json:"as_is_value"`
	ARVValue          decimal.NullDecimal `json:"arv_value"`
	CreatedAt         string              `json:"created_at" format:"date-time"`
	UpdatedAt         string              `json:"updated_at" format:"date-time"`
}

type Outcome struct {
	ID        string `json:"id"`
	HubID     int64  `json:"asset_hub_id"`
	Track     string `json:"track" enum:"dil,foreclosure,reo,short_sale,modification,note_sale"`
	Status    string `json:"status" enum:"active,closed"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Task struct {
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

type Offer struct {
	ID         string          `json:"id"`
	HubID      int64           `json:"asset_hub_id"`
	Source     string          `json:"source" enum:"short_sale,reo,note_sale"`
	Status     string          `json:"status" enum:"pending,accepted,rejected,countered,withdrawn"`
	Price      decimal.Decimal `json:"price"`
	BuyerName  string          `json:"buyer_name,omitempty"`
	BrokerID   *string         `json:"broker_id,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	ReceivedOn *string         `json:"received_on,omitempty" format:"date"`
	CreatedAt  string          `json:"created_at" format:"date-time"`
	UpdatedAt  string          `json:"updated_at" format:"date-time"`
}

type Scope struct {
	ID           string          `json:"id"`
	TaskID       string          `json:"task_id"`
	VendorID     *string         `json:"vendor_id,omitempty"`
	Description  string          `json:"description"`
	Cost         decimal.Decimal `json:"cost"`
	ScheduledFor *string         `json:"scheduled_for,omitempty" format:"date"`
	CompletedOn  *string         `json:"completed_on,omitempty" format:"date"`
	CreatedAt    string          `json:"created_at" format:"date-time"`
	UpdatedAt    string          `json:"updated_at" format:"date-time"`
}

type CalendarEvent struct {
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

type Broker struct {
	ID        string `json:"id"`
	Kind      string `json:"kind" enum:"broker,vendor,trading_partner"`
	Name      string `json:"name"`
	Firm      string `json:"firm,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Market    string `json:"market,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Valuation struct {
	ID        string          `json:"id"`
	HubID     int64           `json:"asset_hub_id"`
	Kind      string          `json:"kind" enum:"bpo_asis,bpo_arv,appraisal"`
	Value     decimal.Decimal `json:"value"`
	AsOf      string          `json:"as_of" format:"date"`
	Source    string          `json:"source,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt string          `json:"created_at" format:"date-time"`
}

type Assignment struct {
	HubID     int64  `json:"asset_hub_id"`
	ActorID   string `json:"actor_id"`
	Duty      string `json:"duty" enum:"asset_manager,analyst,broker_contact"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type TrackMetrics struct {
	Track          string  `json:"track"`
	TotalTasks     int     `json:"total_tasks"`
	OpenTasks      int     `json:"open_tasks"`
	DoneTasks      int     `json:"done_tasks"`
	LatestTaskType string  `json:"latest_task_type,omitempty"`
	LatestTaskAt   *string `json:"latest_task_at,omitempty" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	HubID      int64  `json:"asset_hub_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ActorProfile struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func (o Offer) Validate() error {
	if o.HubID <= 0 {
		return errors.New("asset_hub_id is required")
	}
	if o.Source == "" {
		return errors.New("source is required")
	}
	if !o.Price.IsPositive() {
		return errors.New("price must be positive")
	}
	if o.BuyerName == "" && o.BrokerID == nil {
		return errors.New("buyer_name or broker_id is required")
	}
	return nil
}

func (s Scope) Validate() error {
	if s.TaskID == "" {
		return errors.New("task_id is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if s.Cost.IsNegative() {
		return errors.New("cost must not be negative")
	}
	return nil
}

func (ce CalendarEvent) Validate() error {
	if ce.HubID <= 0 {
		return errors.New("asset_hub_id is required")
	}
	if ce.Body == "" {
		return errors.New("body is required")
	}
	if ce.Kind == "follow_up" && ce.DueOn == nil {
		return errors.New("due_on is required for follow-ups")
	}
	return nil
}

func (v Valuation) Validate() error {
	if v.HubID <= 0 {
		return errors.New("asset_hub_id is required")
	}
	if !v.Value.IsPositive() {
		return errors.New("value must be positive")
	}
	if v.AsOf == "" {
		return errors.New("as_of is required")
	}
	return nil
}

func (b Broker) Validate() error {
	if b.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// LatestTask returns the task with the greatest (created_at, id) key, the one
// shown as the current stage of a track. Timestamps are RFC3339 UTC so string
// order is chronological; the id breaks ties and missing timestamps.
func LatestTask(tasks []Task) *Task {
	if len(tasks) == 0 {
		return nil
	}
	latest := 0
	for i := 1; i < len(tasks); i++ {
		if taskKeyLess(tasks[latest], tasks[i]) {
			latest = i
		}
	}
	return &tasks[latest]
}

func taskKeyLess(a, b Task) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.ID < b.ID
}
