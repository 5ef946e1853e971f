package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flowbit-labs/flowbit-pulse/internal/authority/authoritytest"
	"github.com/flowbit-labs/flowbit-pulse/internal/model"
	"github.com/flowbit-labs/flowbit-pulse/internal/reconcile"
)

func dayPlan() *model.TodayPlan {
	return &model.TodayPlan{
		Date: "2026-10-19",
		Blocks: []model.TimeBlock{
			{ID: "am", Label: "Focus", Start: "09:00", End: "11:00", Tasks: []model.Task{
				{ID: 1, Title: "Draft", Priority: 1, EstimateMin: 45, Status: model.StatusTodo},
				{ID: 2, Title: "Review", Priority: 2, EstimateMin: 15, Status: model.StatusTodo},
			}},
			{ID: "pm", Label: "Admin", Start: "14:00", End: "15:00", Tasks: []model.Task{}},
		},
	}
}

type testEnv struct {
	srv *authoritytest.Server
	dir string
}

func newTestEnv(t *testing.T, plan *model.TodayPlan) testEnv {
	t.Helper()
	t.Setenv("PULSE_CONFIG_DIR", t.TempDir())
	for _, k := range []string{"PULSE_DIR", "PULSE_API_URL", "PULSE_API_TOKEN", "PULSE_FORMAT", "PULSE_LOG_LEVEL", "PULSE_ORDERING"} {
		t.Setenv(k, "")
	}
	return testEnv{srv: authoritytest.New(t, plan, nil), dir: t.TempDir()}
}

func (e testEnv) run(t *testing.T, args ...string) (stdout []byte, stderr []byte, err error) {
	t.Helper()
	return runCLI(t, append([]string{"--api", e.srv.URL(), "--dir", e.dir}, args...))
}

func runCLI(t *testing.T, args []string) (stdout []byte, stderr []byte, err error) {
	t.Helper()

	cmd := NewRootCmd()

	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)

	e := cmd.Execute()
	return outBuf.Bytes(), errBuf.Bytes(), e
}

type envelopeJSON struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]any  `json:"meta"`
	Hints []string        `json:"_hints"`
}

func decode(t *testing.T, out []byte) envelopeJSON {
	t.Helper()
	var env envelopeJSON
	if err := json.Unmarshal(out, &env); err != nil {
		t.Fatalf("decode %q: %v", string(out), err)
	}
	return env
}

func decodePlan(t *testing.T, env envelopeJSON) model.TodayPlan {
	t.Helper()
	var p model.TodayPlan
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	return p
}

func TestPlanShow(t *testing.T) {
	e := newTestEnv(t, dayPlan())

	out, _, err := e.run(t, "plan", "show")
	if err != nil {
		t.Fatalf("plan show: %v", err)
	}
	env := decode(t, out)
	p := decodePlan(t, env)
	if p.Date != "2026-10-19" || len(p.Blocks) != 2 || len(p.Blocks[0].Tasks) != 2 {
		t.Fatalf("unexpected plan: %+v", p)
	}
	if env.Meta["source"] != "planner" || env.Meta["stale"] != false {
		t.Fatalf("meta: %+v", env.Meta)
	}
}

func TestPlanShow_FallsBackToCache(t *testing.T) {
	e := newTestEnv(t, dayPlan())
	if _, _, err := e.run(t, "plan", "show"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	e.srv.Fail(authoritytest.RouteFetch, 503)
	out, stderr, err := e.run(t, "plan", "show")
	if err != nil {
		t.Fatalf("expected cached plan, got %v", err)
	}
	env := decode(t, out)
	if env.Meta["source"] != "cache" || env.Meta["stale"] != true {
		t.Fatalf("meta: %+v", env.Meta)
	}
	if p := decodePlan(t, env); len(p.Blocks) != 2 {
		t.Fatalf("cached plan: %+v", p)
	}
	if !strings.Contains(string(stderr), "Refresh failed") {
		t.Fatalf("stderr: %q", stderr)
	}

	out, _, err = e.run(t, "plan", "show", "--cached")
	if err != nil {
		t.Fatalf("--cached: %v", err)
	}
	if env := decode(t, out); env.Meta["source"] != "cache" {
		t.Fatalf("meta: %+v", env.Meta)
	}
}

func TestPlanShow_NoPlan(t *testing.T) {
	e := newTestEnv(t, nil)

	_, stderr, err := e.run(t, "plan", "show")
	if err == nil || !strings.Contains(string(stderr), "no plan for today") {
		t.Fatalf("expected no-plan error, got %v (stderr=%q)", err, stderr)
	}

	if _, _, err := e.run(t, "plan", "show", "--cached"); err == nil {
		t.Fatalf("expected no-plan error from empty cache")
	}
}

func TestPlanShow_Markdown(t *testing.T) {
	e := newTestEnv(t, dayPlan())

	out, _, err := e.run(t, "--format", "md", "plan", "show")
	if err != nil {
		t.Fatalf("plan show md: %v", err)
	}
	s := string(out)
	if !strings.HasPrefix(s, "# Plan for 2026-10-19") || !strings.Contains(s, "#1 Draft") {
		t.Fatalf("markdown:\n%s", s)
	}
}

func TestPlanGenerateAndReplan(t *testing.T) {
	e := newTestEnv(t, dayPlan())

	out, stderr, err := e.run(t, "plan", "generate")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(string(stderr), "Plan generated") {
		t.Fatalf("stderr: %q", stderr)
	}
	decode(t, out)

	out, _, err = e.run(t, "plan", "replan")
	if err != nil {
		t.Fatalf("replan: %v", err)
	}
	if p := decodePlan(t, decode(t, out)); len(p.Changes) == 0 || p.Changes[0] != "Replanned." {
		t.Fatalf("changes: %v", p.Changes)
	}
}

func TestPlanMove(t *testing.T) {
	e := newTestEnv(t, dayPlan())

	out, stderr, err := e.run(t, "plan", "move", "1", "--to", "pm")
	if err != nil {
		t.Fatalf("move: %v (stderr=%q)", err, stderr)
	}
	env := decode(t, out)
	if env.Meta["phase"] != string(reconcile.PhaseCommitted) || env.Meta["from"] != "am" {
		t.Fatalf("meta: %+v", env.Meta)
	}
	p := e.srv.Plan()
	if len(p.Blocks[1].Tasks) != 1 || p.Blocks[1].Tasks[0].ID != 1 {
		t.Fatalf("planner plan: %+v", p.Blocks)
	}
	if !strings.Contains(string(stderr), "Moved ✨") {
		t.Fatalf("stderr: %q", stderr)
	}
}

func TestPlanMove_ReorderToEnd(t *testing.T) {
	e := newTestEnv(t, dayPlan())

	if _, _, err := e.run(t, "plan", "move", "#1", "--to", "am"); err != nil {
		t.Fatalf("move: %v", err)
	}
	p := e.srv.Plan()
	if p.Blocks[0].Tasks[0].ID != 2 || p.Blocks[0].Tasks[1].ID != 1 {
		t.Fatalf("order: %+v", p.Blocks[0].Tasks)
	}
}

func TestPlanMove_Rejections(t *testing.T) {
	locked := dayPlan()
	locked.LockedBlockIDs = []string{"pm"}

	tests := []struct {
		name    string
		plan    *model.TodayPlan
		args    []string
		wantErr string
	}{
		{name: "locked destination", plan: locked, args: []string{"plan", "move", "1", "--to", "pm"}, wantErr: "locked"},
		{name: "unknown task", plan: dayPlan(), args: []string{"plan", "move", "99", "--to", "pm"}, wantErr: "task not found: 99"},
		{name: "unknown block", plan: dayPlan(), args: []string{"plan", "move", "1", "--to", "night"}, wantErr: "block not found: night"},
		{name: "missing --to", plan: dayPlan(), args: []string{"plan", "move", "1"}, wantErr: "missing --to"},
		{name: "bad id", plan: dayPlan(), args: []string{"plan", "move", "one", "--to", "pm"}, wantErr: "invalid task id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, tt.plan)
			_, stderr, err := e.run(t, tt.args...)
			if err == nil || !strings.Contains(string(stderr), tt.wantErr) {
				t.Fatalf("expected %q, got %v (stderr=%q)", tt.wantErr, err, stderr)
			}
			if n := e.srv.Calls(authoritytest.RouteMove); n != 0 {
				t.Fatalf("move reached the planner %d times", n)
			}
		})
	}
}

func TestPlanLockUnlock(t *testing.T) {
	e := newTestEnv(t, dayPlan())

	out, _, err := e.run(t, "plan", "lock", "am")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if env := decode(t, out); env.Meta["locked"] != true {
		t.Fatalf("meta: %+v", env.Meta)
	}
	if !e.srv.Plan().IsLocked("am") {
		t.Fatalf("planner not locked")
	}

	out, _, err = e.run(t, "plan", "unlock", "am")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if env := decode(t, out); env.Meta["locked"] != false {
		t.Fatalf("meta: %+v", env.Meta)
	}
}

func TestPlanExport(t *testing.T) {
	e := newTestEnv(t, dayPlan())
	to := t.TempDir()

	out, _, err := e.run(t, "plan", "export", "--to", to)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	env := decode(t, out)
	if len(env.Hints) == 0 {
		t.Fatalf("expected git hints")
	}
	b, err := os.ReadFile(filepath.Join(to, "plans", "2026-10-19.md"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.HasPrefix(string(b), "# Plan for 2026-10-19") {
		t.Fatalf("export content:\n%s", b)
	}

	if _, _, err := e.run(t, "plan", "export", "--to", to); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if _, _, err := e.run(t, "plan", "export", "--to", to, "--overwrite"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}

func TestTasksStatusCommands(t *testing.T) {
	tests := []struct {
		args []string
		want model.TaskStatus
	}{
		{args: []string{"tasks", "start", "1"}, want: model.StatusDoing},
		{args: []string{"tasks", "done", "1"}, want: model.StatusDone},
		{args: []string{"tasks", "block", "1"}, want: model.StatusBlocked},
		{args: []string{"tasks", "status", "1", "DONE"}, want: model.StatusDone},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			e := newTestEnv(t, dayPlan())
			out, _, err := e.run(t, tt.args...)
			if err != nil {
				t.Fatalf("%v: %v", tt.args, err)
			}
			var got model.Task
			if err := json.Unmarshal(decode(t, out).Data, &got); err != nil {
				t.Fatalf("decode task: %v", err)
			}
			if got.ID != 1 || got.Status != tt.want {
				t.Fatalf("task: %+v", got)
			}
			if task, _ := e.srv.Task(1); task.Status != tt.want {
				t.Fatalf("planner task: %+v", task)
			}
			if len(e.srv.Events()) != 1 {
				t.Fatalf("events: %+v", e.srv.Events())
			}
		})
	}
}

func TestTasksStatus_Invalid(t *testing.T) {
	e := newTestEnv(t, dayPlan())
	_, stderr, err := e.run(t, "tasks", "status", "1", "someday")
	if err == nil || !strings.Contains(string(stderr), "invalid status") {
		t.Fatalf("expected invalid status, got %v (stderr=%q)", err, stderr)
	}
	if e.srv.Calls(authoritytest.RoutePatch) != 0 {
		t.Fatalf("invalid status reached the planner")
	}
}

func TestTasksAdd(t *testing.T) {
	e := newTestEnv(t, dayPlan())

	out, _, err := e.run(t, "tasks", "add", "--title", "Call bank", "--estimate", "10")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	env := decode(t, out)
	var got model.Task
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != 3 || got.Title != "Call bank" || got.EstimateMin != 10 || got.Status != model.StatusTodo {
		t.Fatalf("created: %+v", got)
	}
	if env.Meta["placed"] != false {
		t.Fatalf("meta: %+v", env.Meta)
	}

	if _, _, err := e.run(t, "tasks", "add"); err == nil {
		t.Fatalf("expected missing --title")
	}
}

func TestTasksShow(t *testing.T) {
	e := newTestEnv(t, dayPlan())

	out, _, err := e.run(t, "tasks", "show", "2")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	env := decode(t, out)
	if env.Meta["block_id"] != "am" || env.Meta["position"] != float64(1) || env.Meta["locked"] != false {
		t.Fatalf("meta: %+v", env.Meta)
	}

	if _, stderr, err := e.run(t, "tasks", "show", "42"); err == nil || !strings.Contains(string(stderr), "task not found: 42") {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHistory(t *testing.T) {
	e := newTestEnv(t, dayPlan())
	if _, _, err := e.run(t, "plan", "move", "1", "--to", "pm"); err != nil {
		t.Fatalf("move: %v", err)
	}

	out, _, err := e.run(t, "history", "--limit", "0")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var atts []reconcile.Attempt
	if err := json.Unmarshal(decode(t, out).Data, &atts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var moves int
	for _, a := range atts {
		if a.Kind == reconcile.KindMove {
			moves++
			if a.Phase != reconcile.PhaseCommitted || a.TaskID != 1 || a.ToBlockID != "pm" {
				t.Fatalf("move attempt: %+v", a)
			}
		}
	}
	if moves != 1 {
		t.Fatalf("expected one move attempt, got %d in %+v", moves, atts)
	}

	md, _, err := e.run(t, "--format", "md", "history")
	if err != nil {
		t.Fatalf("history md: %v", err)
	}
	if !strings.Contains(string(md), "am → pm@0") {
		t.Fatalf("history markdown:\n%s", md)
	}
}

func TestConfigSetAndShow(t *testing.T) {
	e := newTestEnv(t, dayPlan())

	if _, _, err := e.run(t, "config", "set", "ordering", "strict"); err != nil {
		t.Fatalf("set ordering: %v", err)
	}
	if _, _, err := e.run(t, "config", "set", "api_token", "s3cret"); err != nil {
		t.Fatalf("set token: %v", err)
	}

	out, _, err := e.run(t, "config", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if strings.Contains(string(out), "s3cret") {
		t.Fatalf("token leaked: %s", out)
	}
	env := decode(t, out)
	if env.Meta["ordering"] != "strict" {
		t.Fatalf("meta: %+v", env.Meta)
	}

	tests := []struct {
		key, value string
	}{
		{key: "nope", value: "x"},
		{key: "ordering", value: "sideways"},
		{key: "request_timeout", value: "soon"},
		{key: "tui.theme", value: "neon"},
	}
	for _, tt := range tests {
		if _, _, err := e.run(t, "config", "set", tt.key, tt.value); err == nil {
			t.Fatalf("expected config set %s=%s to fail", tt.key, tt.value)
		}
	}
}

func TestRoot_RejectsUnknownFormat(t *testing.T) {
	e := newTestEnv(t, dayPlan())
	if _, _, err := e.run(t, "--format", "yaml", "plan", "show"); err == nil {
		t.Fatalf("expected unknown format error")
	}
}

func TestPlanExport_Commit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	e := newTestEnv(t, dayPlan())
	repo := t.TempDir()
	for _, args := range [][]string{
		{"init"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
	} {
		c := exec.Command("git", args...)
		c.Dir = repo
		if out, err := c.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	out, _, err := e.run(t, "plan", "export", "--to", repo, "--commit")
	if err != nil {
		t.Fatalf("export --commit: %v", err)
	}
	git, _ := decode(t, out).Meta["git"].(map[string]any)
	if git["repo"] != true || git["committed"] != true {
		t.Fatalf("git meta: %+v", git)
	}
}
