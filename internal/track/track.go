// Package track holds the fixed disposition-track registry: the six outcome
// tracks, their ordered task-type sequences, and the badge lookup tables for
// tracks, task types, offer statuses, and delinquency buckets.
package track

import (
	"fmt"
	"strings"
)

const (
	DIL          = "dil"
	Foreclosure  = "foreclosure"
	REO          = "reo"
	ShortSale    = "short_sale"
	Modification = "modification"
	NoteSale     = "note_sale"
)

const DefaultTone = "secondary"

// Badge is a display label plus a color tone name.
type Badge struct {
	Label string `json:"label"`
	Tone  string `json:"tone"`
}

// All returns the six tracks in dashboard order.
func All() []string {
	return []string{DIL, Foreclosure, REO, ShortSale, Modification, NoteSale}
}

var trackBadges = map[string]Badge{
	DIL:          {Label: "Deed-in-Lieu", Tone: "info"},
	Foreclosure:  {Label: "Foreclosure", Tone: "danger"},
	REO:          {Label: "REO", Tone: "primary"},
	ShortSale:    {Label: "Short Sale", Tone: "warning"},
	Modification: {Label: "Modification", Tone: "info"},
	NoteSale:     {Label: "Note Sale", Tone: "secondary"},
}

var taskSequences = map[string][]string{
	DIL:          {"owner_contacted", "negotiations", "drafting", "executed", "recorded"},
	Foreclosure:  {"referral", "first_legal", "judgment", "sale_scheduled", "sold"},
	REO:          {"eviction", "trashout", "renovation", "marketing", "under_contract", "sold"},
	ShortSale:    {"listing", "offer_review", "under_contract", "sold"},
	Modification: {"terms_proposed", "docs_out", "trial_period", "permanent"},
	NoteSale:     {"marketed", "due_diligence", "bid_accepted", "settled"},
}

var taskBadges = map[string]Badge{
	"owner_contacted": {Label: "Owner Contacted", Tone: "secondary"},
	"negotiations":    {Label: "Negotiations", Tone: "info"},
	"drafting":        {Label: "Drafting", Tone: "primary"},
	"executed":        {Label: "Executed", Tone: "warning"},
	"recorded":        {Label: "Recorded", Tone: "success"},
	"referral":        {Label: "Referral", Tone: "secondary"},
	"first_legal":     {Label: "First Legal", Tone: "info"},
	"judgment":        {Label: "Judgment", Tone: "primary"},
	"sale_scheduled":  {Label: "Sale Scheduled", Tone: "warning"},
	"sold":            {Label: "Sold", Tone: "success"},
	"eviction":        {Label: "Eviction", Tone: "warning"},
	"trashout":        {Label: "Trashout", Tone: "info"},
	"renovation":      {Label: "Renovation", Tone: "info"},
	"marketing":       {Label: "Marketing", Tone: "primary"},
	"under_contract":  {Label: "Under Contract", Tone: "warning"},
	"listing":         {Label: "Listing", Tone: "info"},
	"offer_review":    {Label: "Offer Review", Tone: "primary"},
	"terms_proposed":  {Label: "Terms Proposed", Tone: "info"},
	"docs_out":        {Label: "Docs Out", Tone: "primary"},
	"trial_period":    {Label: "Trial Period", Tone: "warning"},
	"permanent":       {Label: "Permanent", Tone: "success"},
	"marketed":        {Label: "Marketed", Tone: "info"},
	"due_diligence":   {Label: "Due Diligence", Tone: "primary"},
	"bid_accepted":    {Label: "Bid Accepted", Tone: "warning"},
	"settled":         {Label: "Settled", Tone: "success"},
}

const (
	OfferPending   = "pending"
	OfferAccepted  = "accepted"
	OfferRejected  = "rejected"
	OfferCountered = "countered"
	OfferWithdrawn = "withdrawn"
)

var offerStatusBadges = map[string]Badge{
	OfferPending:   {Label: "Pending", Tone: "primary"},
	OfferAccepted:  {Label: "Accepted", Tone: "success"},
	OfferRejected:  {Label: "Rejected", Tone: "danger"},
	OfferCountered: {Label: "Countered", Tone: "warning"},
	OfferWithdrawn: {Label: "Withdrawn", Tone: "secondary"},
}

var offerSources = map[string]Badge{
	ShortSale: {Label: "Short Sale", Tone: "warning"},
	REO:       {Label: "REO", Tone: "primary"},
	NoteSale:  {Label: "Note Sale", Tone: "secondary"},
}

var delinquencyBadges = map[string]Badge{
	"current":  {Label: "Current", Tone: "success"},
	"30":       {Label: "30 Days", Tone: "warning"},
	"60":       {Label: "60 Days", Tone: "warning"},
	"90":       {Label: "90 Days", Tone: "danger"},
	"120_plus": {Label: "120+ Days", Tone: "danger"},
}

// Valid reports whether t is one of the six tracks.
func Valid(t string) bool {
	_, ok := taskSequences[t]
	return ok
}

// Parse normalizes a track name from a URL slug or JSON value. Slugs are
// hyphenated ("short-sale"), field values snake_case ("short_sale"); both are
// accepted.
func Parse(s string) (string, error) {
	t := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if !Valid(t) {
		return "", fmt.Errorf("unknown track %q", s)
	}
	return t, nil
}

// Slug returns the URL form of a track name.
func Slug(t string) string {
	return strings.ReplaceAll(t, "_", "-")
}

// TaskTypes returns the ordered task-type sequence for a track.
func TaskTypes(t string) []string {
	seq := taskSequences[t]
	out := make([]string, len(seq))
	copy(out, seq)
	return out
}

// ValidTaskType reports whether taskType belongs to the track's sequence.
func ValidTaskType(t, taskType string) bool {
	for _, tt := range taskSequences[t] {
		if tt == taskType {
			return true
		}
	}
	return false
}

// ScopeEligible reports whether a task of this track and type accepts vendor
// scopes. Only REO trashout and renovation work is bid out.
func ScopeEligible(t, taskType string) bool {
	return t == REO && (taskType == "trashout" || taskType == "renovation")
}

func ValidOfferStatus(s string) bool {
	_, ok := offerStatusBadges[s]
	return ok
}

func ValidDelinquencyStatus(s string) bool {
	_, ok := delinquencyBadges[s]
	return ok
}

func ValidOfferSource(s string) bool {
	_, ok := offerSources[s]
	return ok
}

func OfferStatuses() []string {
	return []string{OfferPending, OfferAccepted, OfferRejected, OfferCountered, OfferWithdrawn}
}

func OfferSources() []string {
	return []string{ShortSale, REO, NoteSale}
}

func DelinquencyStatuses() []string {
	return []string{"current", "30", "60", "90", "120_plus"}
}

func lookup(m map[string]Badge, key string) Badge {
	if b, ok := m[key]; ok {
		return b
	}
	return Badge{Label: key, Tone: DefaultTone}
}

func TrackBadge(t string) Badge { return lookup(trackBadges, t) }

func TaskBadge(taskType string) Badge { return lookup(taskBadges, taskType) }

func OfferStatusBadge(status string) Badge { return lookup(offerStatusBadges, status) }

func OfferSourceBadge(source string) Badge { return lookup(offerSources, source) }

func DelinquencyBadge(bucket string) Badge { return lookup(delinquencyBadges, bucket) }

// Label is shorthand for the display name of a track.
func Label(t string) string {
	return TrackBadge(t).Label
}
