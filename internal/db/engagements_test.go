package db

import (
	"strings"
	"testing"
)

func TestInsertEngagementGeneratesID(t *testing.T) {
	db := testDB(t)
	s, err := db.StartSession("red", "/dev/ttyUSB0", "")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	rec := &EngagementRecord{
		SessionID:      s.SessionID,
		Color:          "red",
		ClassID:        7,
		Label:          "red300",
		PeakConfidence: 0.91,
		LockedAt:       1000,
		ReleasedAt:     2500,
		DurationMs:     1500,
		Frames:         90,
		Pulses:         2,
	}
	if err := db.InsertEngagement(rec); err != nil {
		t.Fatalf("InsertEngagement failed: %v", err)
	}
	if !strings.HasPrefix(rec.EngagementID, "eng_") {
		t.Errorf("EngagementID = %q, want eng_ prefix", rec.EngagementID)
	}

	explicit := &EngagementRecord{
		EngagementID: "eng_fixed-id",
		SessionID:    s.SessionID,
		Color:        "red",
		ClassID:      5,
		Label:        "red100",
		LockedAt:     3000,
		ReleasedAt:   3100,
		DurationMs:   100,
	}
	if err := db.InsertEngagement(explicit); err != nil {
		t.Fatalf("InsertEngagement with explicit ID failed: %v", err)
	}
	if explicit.EngagementID != "eng_fixed-id" {
		t.Errorf("explicit EngagementID rewritten to %q", explicit.EngagementID)
	}
}

func TestListEngagementsOrderedByLock(t *testing.T) {
	db := testDB(t)
	s, err := db.StartSession("blue", "/dev/ttyUSB0", "")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	for _, lockedAt := range []int64{5000, 1000, 3000} {
		rec := &EngagementRecord{
			SessionID: s.SessionID,
			Color:     "blue",
			ClassID:   2,
			Label:     "blue300",
			LockedAt:  lockedAt,
			ReleasedAt: lockedAt + 400,
			DurationMs: 400,
		}
		if err := db.InsertEngagement(rec); err != nil {
			t.Fatalf("InsertEngagement failed: %v", err)
		}
	}

	recs, err := db.ListEngagements(s.SessionID)
	if err != nil {
		t.Fatalf("ListEngagements failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d engagements, want 3", len(recs))
	}
	for i, want := range []int64{1000, 3000, 5000} {
		if recs[i].LockedAt != want {
			t.Errorf("recs[%d].LockedAt = %d, want %d", i, recs[i].LockedAt, want)
		}
	}
}

func TestSessionStats(t *testing.T) {
	db := testDB(t)
	s, err := db.StartSession("red", "/dev/ttyUSB0", "")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := db.InsertCommand(CommandRecord{SessionID: s.SessionID, Pitch: 14000, Yaw: 20000, SentAt: int64(i)}); err != nil {
			t.Fatalf("InsertCommand failed: %v", err)
		}
	}
	if err := db.InsertTelemetry(TelemetryRecord{SessionID: s.SessionID, Pitch: 13990, Yaw: 20000, ReceivedAt: 1}); err != nil {
		t.Fatalf("InsertTelemetry failed: %v", err)
	}

	engagements := []*EngagementRecord{
		{SessionID: s.SessionID, Color: "red", ClassID: 7, Label: "red300",
			PeakConfidence: 0.9, LockedAt: 1000, ReleasedAt: 2500, DurationMs: 1500, Frames: 90, Pulses: 2},
		{SessionID: s.SessionID, Color: "red", ClassID: 9, Label: "red500",
			PeakConfidence: 0.7, LockedAt: 4000, ReleasedAt: 4500, DurationMs: 500, Frames: 30, Pulses: 3},
	}
	for _, rec := range engagements {
		if err := db.InsertEngagement(rec); err != nil {
			t.Fatalf("InsertEngagement failed: %v", err)
		}
	}

	stats, err := db.Stats(s.SessionID)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Commands != 4 {
		t.Errorf("Commands = %d, want 4", stats.Commands)
	}
	if stats.Telemetry != 1 {
		t.Errorf("Telemetry = %d, want 1", stats.Telemetry)
	}
	if stats.Engagements != 2 {
		t.Errorf("Engagements = %d, want 2", stats.Engagements)
	}
	if stats.TotalPulses != 5 {
		t.Errorf("TotalPulses = %d, want 5", stats.TotalPulses)
	}
	if stats.TotalLockMs != 2000 {
		t.Errorf("TotalLockMs = %d, want 2000", stats.TotalLockMs)
	}
	if stats.LongestLockMs != 1500 {
		t.Errorf("LongestLockMs = %d, want 1500", stats.LongestLockMs)
	}
	if stats.MaxConfidence != 0.9 {
		t.Errorf("MaxConfidence = %v, want 0.9", stats.MaxConfidence)
	}
	if stats.MeanLockMs != 1000 {
		t.Errorf("MeanLockMs = %v, want 1000", stats.MeanLockMs)
	}
	if stats.DistinctTargets != 2 {
		t.Errorf("DistinctTargets = %d, want 2", stats.DistinctTargets)
	}
}

func TestSessionStatsEmpty(t *testing.T) {
	db := testDB(t)
	s, err := db.StartSession("red", "/dev/ttyUSB0", "")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	stats, err := db.Stats(s.SessionID)
	if err != nil {
		t.Fatalf("Stats failed on empty session: %v", err)
	}
	if stats.Engagements != 0 || stats.TotalPulses != 0 || stats.MaxConfidence != 0 {
		t.Errorf("empty session stats = %+v, want zeros", stats)
	}
}
