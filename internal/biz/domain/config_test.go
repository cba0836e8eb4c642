package domain

import (
	"reflect"
	"testing"
	"time"
)

func TestApply_EmptyPatchKeepsConfig(t *testing.T) {
	cur := Config{
		ForwardTargetID:  "-1001234567890",
		ReviewTargetID:   "-1009876543210",
		WelcomeText:      "welcome",
		AttachButtons:    true,
		AdminIDs:         []string{"111", "222"},
		AllowlistMode:    true,
		DefaultThreshold: 0.6,
		StrictTemplate:   true,
		SourcesAllow:     []string{"-100555"},
		Metrics:          &MetricsSnapshot{Pending: 1, Approved: 2, Rejected: 3},
	}

	next := ConfigPatch{}.Apply(cur)
	if !reflect.DeepEqual(next, cur) {
		t.Errorf("empty patch changed config: %+v != %+v", next, cur)
	}
}

func TestApply_OverridesOnlySetFields(t *testing.T) {
	cur := Config{
		ForwardTargetID:  "-100111",
		WelcomeText:      "old",
		DefaultThreshold: 0.6,
	}

	welcome := "new"
	strict := true
	next := ConfigPatch{WelcomeText: &welcome, StrictTemplate: &strict}.Apply(cur)

	if next.WelcomeText != "new" {
		t.Errorf("WelcomeText = %q, want %q", next.WelcomeText, "new")
	}
	if !next.StrictTemplate {
		t.Error("expected StrictTemplate to be set")
	}
	if next.ForwardTargetID != "-100111" || next.DefaultThreshold != 0.6 {
		t.Errorf("untouched fields changed: %+v", next)
	}
}

func TestApply_ClampsThreshold(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.7, 0.7},
		{1, 1},
		{1.5, 1},
	}
	for _, tc := range cases {
		v := tc.in
		next := ConfigPatch{DefaultThreshold: &v}.Apply(Config{})
		if next.DefaultThreshold != tc.want {
			t.Errorf("threshold %v: got %v, want %v", tc.in, next.DefaultThreshold, tc.want)
		}
	}
}

func TestApply_CopiesSlices(t *testing.T) {
	admins := []string{"111"}
	next := ConfigPatch{AdminIDs: &admins}.Apply(Config{})
	admins[0] = "mutated"
	if next.AdminIDs[0] != "111" {
		t.Error("patch slice aliased into config")
	}
}

func TestRenderButtons_SortsAndCaps(t *testing.T) {
	var buttons []TrafficButton
	for i := 8; i >= 1; i-- {
		buttons = append(buttons, TrafficButton{Text: "b", URL: "https://example.com", Order: i})
	}

	rendered := RenderButtons(buttons)
	if len(rendered) != MaxRenderButtons {
		t.Fatalf("rendered %d buttons, want %d", len(rendered), MaxRenderButtons)
	}
	for i := 1; i < len(rendered); i++ {
		if rendered[i-1].Order > rendered[i].Order {
			t.Fatalf("buttons not sorted ascending: %+v", rendered)
		}
	}
	if rendered[0].Order != 1 {
		t.Errorf("first rendered order = %d, want 1", rendered[0].Order)
	}
}

func TestEffectiveThreshold(t *testing.T) {
	if got := (AdTemplate{Threshold: 0.8}).EffectiveThreshold(0.6); got != 0.8 {
		t.Errorf("template threshold: got %v, want 0.8", got)
	}
	if got := (AdTemplate{}).EffectiveThreshold(0.6); got != 0.6 {
		t.Errorf("default threshold: got %v, want 0.6", got)
	}
	if got := (AdTemplate{Threshold: 1.4}).EffectiveThreshold(0.6); got != 1 {
		t.Errorf("clamp: got %v, want 1", got)
	}
}

func TestNewPendingID_Derivation(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	id := NewPendingID(ts, -100123, 42)
	if id != "1700000000000_-100123_42" {
		t.Errorf("id = %q", id)
	}
}
