package track

import "testing"

func TestParseAcceptsSlugsAndFieldValues(t *testing.T) {
	cases := map[string]string{
		"reo":          REO,
		"short-sale":   ShortSale,
		"short_sale":   ShortSale,
		"Note-Sale":    NoteSale,
		"foreclosure":  Foreclosure,
		"modification": Modification,
		"dil":          DIL,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := Parse("rental"); err == nil {
		t.Fatalf("unknown track should not parse")
	}
}

func TestSlugRoundTrip(t *testing.T) {
	for _, tr := range All() {
		got, err := Parse(Slug(tr))
		if err != nil || got != tr {
			t.Fatalf("slug round trip for %q: got %q, err %v", tr, got, err)
		}
	}
}

func TestUnknownKeysFallBackToSecondary(t *testing.T) {
	for _, b := range []Badge{
		TrackBadge("timeshare"),
		TaskBadge("painting"),
		OfferStatusBadge("escalated"),
		DelinquencyBadge("45"),
	} {
		if b.Tone != DefaultTone {
			t.Fatalf("unknown key should use tone %q, got %q", DefaultTone, b.Tone)
		}
	}
	if TaskBadge("painting").Label != "painting" {
		t.Fatalf("unknown key should keep the raw label")
	}
}

func TestREOSequenceOrder(t *testing.T) {
	want := []string{"eviction", "trashout", "renovation", "marketing", "under_contract", "sold"}
	got := TaskTypes(REO)
	if len(got) != len(want) {
		t.Fatalf("reo sequence length %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reo sequence[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestScopeEligibility(t *testing.T) {
	if !ScopeEligible(REO, "trashout") || !ScopeEligible(REO, "renovation") {
		t.Fatalf("reo trashout and renovation must accept scopes")
	}
	if ScopeEligible(REO, "marketing") {
		t.Fatalf("reo marketing must not accept scopes")
	}
	if ScopeEligible(ShortSale, "trashout") {
		t.Fatalf("non-reo tracks must not accept scopes")
	}
}

func TestValidTaskTypePerTrack(t *testing.T) {
	if !ValidTaskType(Foreclosure, "first_legal") {
		t.Fatalf("first_legal belongs to foreclosure")
	}
	if ValidTaskType(Foreclosure, "trashout") {
		t.Fatalf("trashout does not belong to foreclosure")
	}
}
