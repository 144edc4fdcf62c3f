package core

import (
	"testing"
	"time"
)

func TestSession_AdvanceAndClone(t *testing.T) {
	s := NewSession("u1", time.Now())
	if !s.Idle() {
		t.Fatal("new session should be idle")
	}

	s.Start("report", "category")
	s.SetAnswer("category", "Banking")
	s.Advance("description")
	if s.StepIndex != 1 {
		t.Fatalf("expected step index 1, got %d", s.StepIndex)
	}

	clone := s.Clone()
	if clone == s {
		t.Error("Clone should be a different pointer")
	}

	clone.SetAnswer("description", "x")
	clone.AppendMedia(MediaItem{Ref: "r1"})
	if _, exists := s.Answer("description"); exists {
		t.Error("Original should not have clone's new answer")
	}
	if len(s.Media) != 0 {
		t.Error("Original should not have clone's media")
	}
}

func TestSession_ResetDropsFlowState(t *testing.T) {
	s := NewSession("u1", time.Now())
	s.Start("report", "category")
	s.SetAnswer("category", "Banking")
	s.AppendMedia(MediaItem{Ref: "r1"}, MediaItem{Ref: "r2"})
	s.Advance("evidence")

	s.Reset()
	if !s.Idle() || s.StepIndex != 0 || len(s.Answers) != 0 || len(s.Media) != 0 {
		t.Fatalf("reset left state behind: %+v", s)
	}
	if s.Identity != "u1" {
		t.Fatal("reset must keep the identity")
	}
}

func TestIntakeRecord_RecentTimeline(t *testing.T) {
	r := IntakeRecord{}
	for _, a := range []string{"a", "b", "c", "d"} {
		r.Timeline = append(r.Timeline, TimelineEntry{Action: a})
	}
	got := r.RecentTimeline(3)
	if len(got) != 3 || got[0].Action != "b" || got[2].Action != "d" {
		t.Fatalf("unexpected recent timeline: %+v", got)
	}
	if _, ok := (IntakeRecord{}).LatestNote(); ok {
		t.Fatal("expected no latest note")
	}
}
