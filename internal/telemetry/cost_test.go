// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aljaroudi/t3lepathy/internal/model"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestSummarize(t *testing.T) {
	chatID := "chat-1"
	user := model.NewUserMessage(chatID, "gpt-4o", model.Text{Text: "hi"})
	user.Tokens = model.IntPtr(1000)
	reply := model.NewAssistantPlaceholder(chatID, "gpt-4o")
	reply.Tokens = model.IntPtr(500)
	image := model.NewAssistantPlaceholder(chatID, model.ImageModelName)
	image.Tokens = model.IntPtr(10)
	pending := model.NewAssistantPlaceholder(chatID, "gpt-4o")

	usage := Summarize(chatID, []model.Message{user, reply, image, pending})

	if usage.Messages != 4 {
		t.Errorf("Messages = %d, want 4", usage.Messages)
	}
	if usage.InputTokens != 1000 || usage.OutputTokens != 510 {
		t.Errorf("tokens = %d/%d, want 1000/510", usage.InputTokens, usage.OutputTokens)
	}
	if usage.TotalTokens() != 1510 {
		t.Errorf("TotalTokens() = %d, want 1510", usage.TotalTokens())
	}
	want := 1000*0.000_002_50 + 500*0.000_010_00
	if !approx(usage.Cost, want) {
		t.Errorf("Cost = %v, want %v", usage.Cost, want)
	}
	if usage.Unpriced != 1 {
		t.Errorf("Unpriced = %d, want 1 (the image reply)", usage.Unpriced)
	}
	if len(usage.ByModel) != 2 || usage.ByModel[0].Model != model.ImageModelName || usage.ByModel[1].Model != "gpt-4o" {
		t.Errorf("ByModel = %+v", usage.ByModel)
	}
}

func TestSummarize_Empty(t *testing.T) {
	usage := Summarize("c", nil)
	if usage.Cost != 0 || usage.TotalTokens() != 0 {
		t.Errorf("empty chat usage = %+v", usage)
	}
	if usage.ByModel == nil {
		t.Error("ByModel should be an empty slice, not nil")
	}
}

func TestQueryPrice(t *testing.T) {
	tests := []struct {
		name   string
		model  string
		input  *int
		output *int
		want   float64
	}{
		{"both", "gemini-2.5-flash", model.IntPtr(1_000_000), model.IntPtr(1_000_000), 0.30 + 2.50},
		{"nil output", "gemini-2.5-flash", model.IntPtr(1_000_000), nil, 0.30},
		{"unknown model", "mystery", model.IntPtr(10), model.IntPtr(10), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QueryPrice(tt.model, tt.input, tt.output); !approx(got, tt.want) {
				t.Errorf("QueryPrice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCostTracker_Record(t *testing.T) {
	tracker, err := NewCostTracker(t.TempDir())
	if err != nil {
		t.Fatalf("NewCostTracker failed: %v", err)
	}

	tracker.Record("a", "gpt-4o-mini", model.IntPtr(100), model.IntPtr(200), time.Second)
	q := tracker.Record("b", "gpt-4o", model.IntPtr(1000), model.IntPtr(2000), 2*time.Second)
	tracker.Record("a", "gpt-4o-mini", nil, nil, 0)

	session := tracker.GetCurrentSession()
	if session.Queries != 3 {
		t.Errorf("Queries = %d, want 3", session.Queries)
	}
	if session.Tokens.Input != 1100 || session.Tokens.Output != 2200 {
		t.Errorf("Tokens = %+v", session.Tokens)
	}
	if got := session.ByModel["gpt-4o"]; got.Input != 1000 || got.Output != 2000 {
		t.Errorf("ByModel[gpt-4o] = %+v", got)
	}
	if len(session.TopQueries) != 3 || session.TopQueries[0].ChatID != "b" {
		t.Errorf("TopQueries not ordered by cost: %+v", session.TopQueries)
	}
	if !approx(session.TopQueries[0].Cost, q.Cost) {
		t.Errorf("top cost = %v, want %v", session.TopQueries[0].Cost, q.Cost)
	}

	// the returned session is a copy
	session.ByModel["gpt-4o"] = TokenCount{}
	if tracker.GetCurrentSession().ByModel["gpt-4o"].Input != 1000 {
		t.Error("GetCurrentSession leaked internal state")
	}
}

func TestCostTracker_TopQueriesBounded(t *testing.T) {
	tracker, err := NewCostTracker(t.TempDir())
	if err != nil {
		t.Fatalf("NewCostTracker failed: %v", err)
	}
	for i := 1; i <= MaxTopQueries+5; i++ {
		tracker.Record("c", "gpt-4o", model.IntPtr(i), model.IntPtr(i), 0)
	}
	session := tracker.GetCurrentSession()
	if len(session.TopQueries) != MaxTopQueries {
		t.Fatalf("len(TopQueries) = %d, want %d", len(session.TopQueries), MaxTopQueries)
	}
	if session.TopQueries[0].InputTokens != MaxTopQueries+5 {
		t.Errorf("most expensive query missing: %+v", session.TopQueries[0])
	}
}

func TestCostTracker_EndSessionPersists(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewCostTracker(dir)
	if err != nil {
		t.Fatalf("NewCostTracker failed: %v", err)
	}

	// an empty session is not written
	if err := tracker.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if n, _ := tracker.Storage().Count(); n != 0 {
		t.Errorf("Count() = %d after empty session, want 0", n)
	}

	firstID := tracker.GetCurrentSession().ID
	tracker.Record("c", "gpt-4o", model.IntPtr(10), model.IntPtr(20), 0)
	if err := tracker.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if tracker.GetCurrentSession().ID == firstID {
		t.Error("EndSession did not start a new session")
	}

	loaded, err := tracker.Storage().Load(firstID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Queries != 1 || loaded.EndTime.IsZero() {
		t.Errorf("loaded session = %+v", loaded)
	}

	info, err := os.Stat(filepath.Join(dir, firstID+".json"))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		t.Errorf("session file mode = %v, want owner-only", info.Mode().Perm())
	}
}

func TestCostTracker_Trends(t *testing.T) {
	tracker, err := NewCostTracker(t.TempDir())
	if err != nil {
		t.Fatalf("NewCostTracker failed: %v", err)
	}
	tracker.Record("c", "gpt-4o", model.IntPtr(1000), model.IntPtr(1000), 0)
	if err := tracker.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	tracker.Record("c", "gemini-2.5-pro", model.IntPtr(1000), nil, 0)

	trends, err := tracker.GetTrends(7)
	if err != nil {
		t.Fatalf("GetTrends failed: %v", err)
	}
	want := QueryPrice("gpt-4o", model.IntPtr(1000), model.IntPtr(1000)) +
		QueryPrice("gemini-2.5-pro", model.IntPtr(1000), nil)
	if !approx(trends.TotalCost, want) {
		t.Errorf("TotalCost = %v, want %v", trends.TotalCost, want)
	}
	if len(trends.ModelBreakdown) != 2 {
		t.Errorf("ModelBreakdown = %v", trends.ModelBreakdown)
	}
	queries := 0
	for _, d := range trends.DailyBreakdown {
		queries += d.QueryCount
	}
	if queries != 2 {
		t.Errorf("daily query count = %d, want 2", queries)
	}
}

func TestCostStorage_ListAndDeleteBefore(t *testing.T) {
	cs, err := NewCostStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewCostStorage failed: %v", err)
	}

	old := &SessionCost{ID: "20200101-120000-1"}
	recent := &SessionCost{ID: time.Now().Format(sessionTimeLayout) + "-2"}
	for _, s := range []*SessionCost{old, recent} {
		if err := cs.Save(s); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	// ignored: not a session file name
	if err := os.WriteFile(filepath.Join(cs.Dir(), "notes.json"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	ids, err := cs.List(time.Time{}, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != old.ID {
		t.Errorf("List() = %v", ids)
	}

	removed, err := cs.DeleteBefore(time.Now().AddDate(0, 0, -1))
	if err != nil {
		t.Fatalf("DeleteBefore failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("DeleteBefore removed %d, want 1", removed)
	}
	if n, _ := cs.Count(); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
	if size, err := cs.Size(); err != nil || size == 0 {
		t.Errorf("Size() = %d, %v", size, err)
	}
}

func TestNewCostStorage_RequiresDir(t *testing.T) {
	if _, err := NewCostStorage(""); err == nil {
		t.Error("expected error for empty dir")
	}
}
