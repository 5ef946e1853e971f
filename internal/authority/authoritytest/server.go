// Package authoritytest runs an in-memory planner behind httptest for tests.
//
// It is not a planner: generate and replan hand back the seeded plan. Move, lock,
// task and event routes follow the real API, including its status codes.
package authoritytest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/flowbit-labs/flowbit-pulse/internal/authority"
	"github.com/flowbit-labs/flowbit-pulse/internal/model"
	"github.com/flowbit-labs/flowbit-pulse/internal/mutate"
	"github.com/flowbit-labs/flowbit-pulse/internal/perm"
)

const (
	RouteFetch    = "GET /plan/today"
	RouteGenerate = "POST /plan/generate"
	RouteReplan   = "POST /plan/replan"
	RouteMove     = "POST /plan/move-task"
	RouteLock     = "POST /plan/lock"
	RoutePatch    = "PATCH /tasks/{id}"
	RouteEvents   = "POST /events"
	RouteCreate   = "POST /tasks"
)

type Event struct {
	Kind   string `json:"kind"`
	TaskID int    `json:"task_id"`
}

type Server struct {
	srv *httptest.Server

	mu     sync.Mutex
	plan   *model.TodayPlan
	seed   *model.TodayPlan
	tasks  map[int]model.Task
	events []Event
	nextID int
	fail   map[string]int
	calls  map[string]int
	hooks  map[string]func()
}

// New starts a server holding plan (nil means "no plan yet"). Generate and
// replan return seed, or plan when seed is nil. The server is closed on test cleanup.
func New(t testing.TB, plan, seed *model.TodayPlan) *Server {
	t.Helper()
	s := &Server{
		plan:  plan.Clone(),
		seed:  seed.Clone(),
		tasks: map[int]model.Task{},
		fail:  map[string]int{},
		calls: map[string]int{},
		hooks: map[string]func(){},
	}
	if s.seed == nil {
		s.seed = plan.Clone()
	}
	for _, p := range []*model.TodayPlan{plan, seed} {
		if p == nil {
			continue
		}
		for _, b := range p.Blocks {
			for _, task := range b.Tasks {
				s.tasks[task.ID] = task
				if task.ID >= s.nextID {
					s.nextID = task.ID + 1
				}
			}
		}
	}
	if s.nextID == 0 {
		s.nextID = 1
	}

	mux := http.NewServeMux()
	mux.HandleFunc(RouteFetch, s.route(RouteFetch, s.handleFetch))
	mux.HandleFunc(RouteGenerate, s.route(RouteGenerate, s.handleGenerate))
	mux.HandleFunc(RouteReplan, s.route(RouteReplan, s.handleReplan))
	mux.HandleFunc(RouteMove, s.route(RouteMove, s.handleMove))
	mux.HandleFunc(RouteLock, s.route(RouteLock, s.handleLock))
	mux.HandleFunc(RoutePatch, s.route(RoutePatch, s.handlePatch))
	mux.HandleFunc(RouteEvents, s.route(RouteEvents, s.handleEvent))
	mux.HandleFunc(RouteCreate, s.route(RouteCreate, s.handleCreate))

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *Server) URL() string { return s.srv.URL }

// Client returns an authority client pointed at the server.
func (s *Server) Client(t testing.TB) *authority.Client {
	t.Helper()
	c, err := authority.New(authority.Options{BaseURL: s.srv.URL, HTTPClient: s.srv.Client()})
	if err != nil {
		t.Fatalf("authority client: %v", err)
	}
	return c
}

// Fail makes every request to route answer with code until Heal is called.
func (s *Server) Fail(route string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[route] = code
}

func (s *Server) Heal(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fail, route)
}

// OnRequest runs fn before route is handled, outside the server lock. Tests use it
// to block a request until they are ready.
func (s *Server) OnRequest(route string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[route] = fn
}

func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Plan returns a copy of the stored plan.
func (s *Server) Plan() *model.TodayPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan.Clone()
}

func (s *Server) SetPlan(p *model.TodayPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = p.Clone()
}

func (s *Server) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *Server) Task(id int) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[name]++
		code, failing := s.fail[name]
		hook := s.hooks[name]
		s.mu.Unlock()

		if hook != nil {
			hook()
		}
		if failing {
			writeDetail(w, code, "injected failure")
			return
		}
		h(w, r)
	}
}

func (s *Server) handleFetch(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		writeDetail(w, http.StatusNotFound, "No plan for today")
		return
	}
	writeJSON(w, s.plan)
}

func (s *Server) handleGenerate(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.seed.Clone()
	if p == nil {
		p = emptyDay()
	}
	p.LockedBlockIDs = []string{}
	p.Changes = []string{}
	s.plan = p
	writeJSON(w, s.plan)
}

func (s *Server) handleReplan(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.seed.Clone()
	if p == nil {
		p = emptyDay()
	}
	var locked []string
	if s.plan != nil {
		locked = append(locked, s.plan.LockedBlockIDs...)
	}
	p.LockedBlockIDs = locked
	p.Changes = []string{"Replanned."}
	if len(locked) > 0 {
		p.Changes = append(p.Changes, "Protected "+strconv.Itoa(len(locked))+" locked block(s).")
	}
	s.plan = p
	writeJSON(w, s.plan)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req authority.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		writeDetail(w, http.StatusNotFound, "No plan for today")
		return
	}
	var locked *perm.LockedError
	if err := perm.CheckMove(s.plan, req.FromBlockID, req.ToBlockID); errors.As(err, &locked) {
		writeDetail(w, http.StatusBadRequest, "Cannot move tasks in/out of locked blocks")
		return
	}
	if s.plan.BlockIndex(req.FromBlockID) < 0 || s.plan.BlockIndex(req.ToBlockID) < 0 {
		writeDetail(w, http.StatusNotFound, "Block not found")
		return
	}
	res := mutate.MoveTask(s.plan, req.TaskID, req.FromBlockID, req.ToBlockID, req.ToIndex)
	if !res.Changed {
		writeDetail(w, http.StatusNotFound, "Task not found in source block")
		return
	}
	s.plan = res.Plan
	writeJSON(w, s.plan)
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BlockID string `json:"block_id"`
		Locked  bool   `json:"locked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		s.plan = s.seed.Clone()
		if s.plan == nil {
			s.plan = &model.TodayPlan{Blocks: []model.TimeBlock{}}
		}
	}
	set := map[string]bool{}
	for _, id := range s.plan.LockedBlockIDs {
		set[id] = true
	}
	verb := "Unlocked"
	if req.Locked {
		set[req.BlockID] = true
		verb = "Locked"
	} else {
		delete(set, req.BlockID)
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	p := s.plan.Clone()
	p.LockedBlockIDs = ids
	p.Changes = []string{verb + " " + req.BlockID + "."}
	s.plan = p
	writeJSON(w, s.plan)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "bad task id")
		return
	}
	var req struct {
		Status model.TaskStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Task not found")
		return
	}
	t.Status = req.Status
	s.tasks[id] = t

	// Reflect the status in the stored plan so a refetch shows it.
	if s.plan != nil {
		p := s.plan.Clone()
		if pt, ok := p.Task(id); ok {
			pt.Status = req.Status
		}
		s.plan = p
	}
	writeJSON(w, t)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	writeJSON(w, map[string]bool{"ok": true})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req model.NewTask
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "title required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := model.Task{
		ID:          s.nextID,
		Title:       req.Title,
		Notes:       req.Notes,
		Priority:    req.Priority,
		EstimateMin: req.EstimateMin,
		Status:      model.StatusTodo,
	}
	s.nextID++
	s.tasks[t.ID] = t
	writeJSON(w, t)
}

func emptyDay() *model.TodayPlan {
	return &model.TodayPlan{Date: time.Now().Format(time.DateOnly), Blocks: []model.TimeBlock{}}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
