package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLatestTaskPicksMaxCreatedAt(t *testing.T) {
	tasks := []Task{
		{ID: "a", TaskType: "eviction", CreatedAt: "2025-01-01T10:00:00Z"},
		{ID: "b", TaskType: "trashout", CreatedAt: "2025-03-01T10:00:00Z"},
		{ID: "c", TaskType: "renovation", CreatedAt: "2025-02-01T10:00:00Z"},
	}
	got := LatestTask(tasks)
	if got == nil || got.ID != "b" {
		t.Fatalf("expected task b, got %+v", got)
	}
}

func TestLatestTaskTieBreaksOnID(t *testing.T) {
	ts := "2025-04-01T09:30:00Z"
	tasks := []Task{
		{ID: "0a1", CreatedAt: ts},
		{ID: "0c9", CreatedAt: ts},
		{ID: "0b5", CreatedAt: ts},
	}
	got := LatestTask(tasks)
	if got == nil || got.ID != "0c9" {
		t.Fatalf("expected greatest id to win, got %+v", got)
	}
}

func TestLatestTaskMissingTimestamps(t *testing.T) {
	tasks := []Task{
		{ID: "x"},
		{ID: "z"},
		{ID: "y", CreatedAt: "2025-01-05T00:00:00Z"},
	}
	got := LatestTask(tasks)
	if got == nil || got.ID != "y" {
		t.Fatalf("timestamped task should beat empty timestamps, got %+v", got)
	}
	if LatestTask(nil) != nil {
		t.Fatalf("empty list should yield nil")
	}
}

func TestOfferValidate(t *testing.T) {
	o := Offer{HubID: 7, Source: "reo", Price: decimal.NewFromInt(185000), BuyerName: "J. Alvarez"}
	if err := o.Validate(); err != nil {
		t.Fatalf("valid offer rejected: %v", err)
	}
	o.Price = decimal.Zero
	if err := o.Validate(); err == nil {
		t.Fatalf("zero price should be rejected")
	}
	o.Price = decimal.NewFromInt(185000)
	o.BuyerName = ""
	o.BrokerID = nil
	if err := o.Validate(); err == nil {
		t.Fatalf("offer without buyer or broker should be rejected")
	}
}

func TestCalendarEventValidate(t *testing.T) {
	ev := CalendarEvent{HubID: 7, Kind: "note", Body: "left voicemail for borrower"}
	if err := ev.Validate(); err != nil {
		t.Fatalf("valid note rejected: %v", err)
	}
	ev.Kind = "follow_up"
	if err := ev.Validate(); err == nil {
		t.Fatalf("follow-up without due_on should be rejected")
	}
	due := "2025-06-15"
	ev.DueOn = &due
	if err := ev.Validate(); err != nil {
		t.Fatalf("follow-up with due_on rejected: %v", err)
	}
}
