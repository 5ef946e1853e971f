package publish

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/flowbit-labs/flowbit-pulse/internal/format"
	"github.com/flowbit-labs/flowbit-pulse/internal/model"
)

func strPtr(s string) *string { return &s }

func fullPlan() *model.TodayPlan {
	buf := 30
	return &model.TodayPlan{
		Date: "2026-10-19",
		Blocks: []model.TimeBlock{
			{ID: "am", Label: "Morning", Start: "09:00", End: "12:00", Tasks: []model.Task{
				{ID: 1, Title: "Draft", Priority: 1, EstimateMin: 45, Status: model.StatusTodo, DueAt: strPtr("2026-10-19T17:00:00")},
				{ID: 2, Title: "Review", Priority: 2, EstimateMin: 30, Status: model.StatusDoing},
				{ID: 3, Title: "Inbox zero", Status: model.StatusDone},
			}},
			{ID: "pm", Label: "Afternoon", Start: "13:00", End: "17:00", Tasks: []model.Task{
				{ID: 4, Title: "Vendor call", Priority: 3, EstimateMin: 20, Status: model.StatusBlocked},
			}},
			{ID: "buffer", Tasks: []model.Task{}},
		},
		Now:            model.NowRecommendation{Task: &model.Task{ID: 1, Title: "Draft"}, Reason: strPtr("Highest priority and due today.")},
		BufferMin:      &buf,
		LockedBlockIDs: []string{"pm"},
		Changes:        []string{"Moved \"Draft\" → Morning.", "Protected 1 locked block(s)."},
		Explanation:    strPtr("Kept the afternoon intact because it is locked."),
	}
}

func TestRenderPlanMarkdown_Golden(t *testing.T) {
	g := goldie.New(t)
	g.Assert(t, "plan", []byte(RenderPlanMarkdown(fullPlan())))
}

func TestRenderPlanMarkdown_Minimal(t *testing.T) {
	t.Parallel()

	got := RenderPlanMarkdown(&model.TodayPlan{Blocks: []model.TimeBlock{{ID: "x"}}})
	want := "# Plan\n\n## x\n\n_No tasks._\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := RenderPlanMarkdown(nil); !strings.Contains(got, "No plan yet") {
		t.Fatalf("nil plan: %q", got)
	}
}

func TestRenderUpdatesMarkdown(t *testing.T) {
	t.Parallel()

	if got := RenderUpdatesMarkdown(&model.TodayPlan{}); got != "_No updates yet._\n" {
		t.Fatalf("empty: %q", got)
	}
	p := fullPlan()
	want := "- Moved \"Draft\" → Morning.\n- Protected 1 locked block(s).\n\nKept the afternoon intact because it is locked.\n"
	if got := RenderUpdatesMarkdown(p); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPlanDoc_WritesMarkdownAndJSON(t *testing.T) {
	t.Parallel()

	doc := PlanDoc{TodayPlan: fullPlan()}
	var md strings.Builder
	if err := format.Write(&md, doc, "md", false); err != nil {
		t.Fatalf("md: %v", err)
	}
	if md.String() != RenderPlanMarkdown(fullPlan()) {
		t.Fatalf("md output differs from renderer")
	}

	var js strings.Builder
	if err := format.Write(&js, doc, "json", false); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(js.String(), `"locked_block_ids":["pm"]`) {
		t.Fatalf("json lost plan fields: %s", js.String())
	}
}

func TestWritePlan(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	res, err := WritePlan(fullPlan(), dir, WriteOptions{})
	if err != nil {
		t.Fatalf("WritePlan: %v", err)
	}
	want := filepath.Join(dir, "plans", "2026-10-19.md")
	if len(res.Written) != 1 || res.Written[0] != want {
		t.Fatalf("written = %v", res.Written)
	}
	b, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(b), "# Plan for 2026-10-19\n") {
		t.Fatalf("unexpected content: %q", string(b))
	}

	if _, err := WritePlan(fullPlan(), dir, WriteOptions{}); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if _, err := WritePlan(fullPlan(), dir, WriteOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := WritePlan(nil, dir, WriteOptions{}); err == nil {
		t.Fatalf("expected error for nil plan")
	}
}
