// Package executor implements the PlanExecutor: runs a planner.TaskPlan's
// steps in dependency order, snapshotting files before their first
// mutation so a failed run can be rolled back.
package executor

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/forgekit/agentcore/internal/planner"
	"github.com/forgekit/agentcore/internal/tools"
)

// ToolExecutor dispatches a single named tool call. The agent loop's
// tools.Registry satisfies this.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) *tools.Result
}

// Config controls the executor's concurrency and rollback behavior.
type Config struct {
	AutoRollbackOnFailure bool
	ParallelExecution     bool
	MaxParallelSteps      int
}

// Event is emitted after every step-status transition, so a caller can
// render live progress.
type Event struct {
	Phase    string // "started", "step_started", "step_completed", "step_failed", "step_skipped", "rolled_back", "done"
	StepID   string
	Progress float64 // 0..1, fraction of steps resolved (completed, failed, or skipped)
}

// Result is the outcome of running a plan to completion.
type Result struct {
	Plan        *planner.TaskPlan
	Success     bool
	RolledBack  bool
	FailedStep  string
}

// Executor is the PlanExecutor.
type Executor struct {
	tools  ToolExecutor
	cfg    Config
	onEvent func(Event)
}

// NewExecutor builds an Executor. onEvent may be nil.
func NewExecutor(toolExec ToolExecutor, cfg Config, onEvent func(Event)) *Executor {
	if cfg.MaxParallelSteps <= 0 {
		cfg.MaxParallelSteps = 2
	}
	return &Executor{tools: toolExec, cfg: cfg, onEvent: onEvent}
}

func (e *Executor) emit(ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}

// snapshot records a file's pre-run bytes the first time any step is
// about to write it, regardless of which tool performs that write.
type snapshot struct {
	path    string
	existed bool
	content []byte
}

// Execute runs plan's steps in dependency order (topological sort, ties
// broken by the plan's original step order). On a failed step with
// AutoRollbackOnFailure set, every snapshot taken during this run is
// restored and all steps that had not yet completed are marked skipped.
func (e *Executor) Execute(ctx context.Context, plan *planner.TaskPlan) (*Result, error) {
	order, err := topoSort(plan.Steps)
	if err != nil {
		return nil, err
	}

	e.emit(Event{Phase: "started"})

	snapshots := make(map[string]*snapshot)
	var snapMu sync.Mutex
	snapshotOnce := func(path string) {
		snapMu.Lock()
		defer snapMu.Unlock()
		if _, ok := snapshots[path]; ok {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			snapshots[path] = &snapshot{path: path, existed: false}
			return
		}
		snapshots[path] = &snapshot{path: path, existed: true, content: data}
	}

	byID := make(map[string]*planner.PlanStep, len(plan.Steps))
	for _, s := range plan.Steps {
		byID[s.ID] = s
	}

	resolved := 0
	total := len(order)
	failedStep := ""

	runStep := func(s *planner.PlanStep) bool {
		if path, ok := s.Args["path"].(string); ok && (s.Type == "edit" || s.Tool == "create_file" || s.Tool == "edit_file") {
			snapshotOnce(path)
		}

		s.Status = planner.StepRunning
		now := time.Now()
		s.StartTime = &now
		e.emit(Event{Phase: "step_started", StepID: s.ID})

		res := e.tools.Execute(ctx, s.Tool, s.Args)
		end := time.Now()
		s.EndTime = &end

		if res == nil || !res.Success {
			s.Status = planner.StepFailed
			if res != nil {
				s.Error = res.Error
			}
			e.emit(Event{Phase: "step_failed", StepID: s.ID})
			return false
		}

		s.Status = planner.StepCompleted
		s.Result = res.Output
		resolved++
		e.emit(Event{Phase: "step_completed", StepID: s.ID, Progress: float64(resolved) / float64(total)})
		return true
	}

	if e.cfg.ParallelExecution {
		if err := e.runParallel(ctx, order, byID, runStep, &failedStep); err != nil {
			return e.finish(plan, snapshots, failedStep), err
		}
	} else {
		for _, id := range order {
			if ctx.Err() != nil {
				failedStep = id
				break
			}
			s := byID[id]
			if !allDepsCompleted(s, byID) {
				s.Status = planner.StepSkipped
				resolved++
				e.emit(Event{Phase: "step_skipped", StepID: s.ID, Progress: float64(resolved) / float64(total)})
				continue
			}
			if !runStep(s) {
				failedStep = s.ID
				break
			}
		}
	}

	if failedStep != "" {
		for _, id := range order {
			s := byID[id]
			if s.Status == planner.StepPending || s.Status == planner.StepRunning {
				s.Status = planner.StepSkipped
			}
		}
	}

	return e.finish(plan, snapshots, failedStep), nil
}

func (e *Executor) finish(plan *planner.TaskPlan, snapshots map[string]*snapshot, failedStep string) *Result {
	result := &Result{Plan: plan, Success: failedStep == "", FailedStep: failedStep}

	if failedStep != "" && e.cfg.AutoRollbackOnFailure {
		for _, snap := range snapshots {
			if snap.existed {
				_ = os.WriteFile(snap.path, snap.content, 0644)
			} else {
				_ = os.Remove(snap.path)
			}
		}
		result.RolledBack = true
		e.emit(Event{Phase: "rolled_back"})
	}

	e.emit(Event{Phase: "done", Progress: 1})
	return result
}

// runParallel dispatches independent steps (steps whose dependencies have
// all completed, and which have no in-flight or failed ancestor) up to
// MaxParallelSteps at a time.
func (e *Executor) runParallel(ctx context.Context, order []string, byID map[string]*planner.PlanStep, runStep func(*planner.PlanStep) bool, failedStep *string) error {
	sem := make(chan struct{}, e.cfg.MaxParallelSteps)
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := false

	remaining := make(map[string]bool, len(order))
	for _, id := range order {
		remaining[id] = true
	}

	for len(remaining) > 0 {
		mu.Lock()
		if failed {
			mu.Unlock()
			break
		}
		mu.Unlock()

		var runnable []string
		for _, id := range order {
			if !remaining[id] {
				continue
			}
			s := byID[id]
			if allDepsResolved(s, byID) {
				runnable = append(runnable, id)
			}
		}
		if len(runnable) == 0 {
			break
		}

		for _, id := range runnable {
			delete(remaining, id)
			s := byID[id]
			if !allDepsCompleted(s, byID) {
				s.Status = planner.StepSkipped
				continue
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(s *planner.PlanStep) {
				defer wg.Done()
				defer func() { <-sem }()
				if !runStep(s) {
					mu.Lock()
					if !failed {
						failed = true
						*failedStep = s.ID
					}
					mu.Unlock()
				}
			}(s)
		}
		wg.Wait()
	}

	return nil
}

func allDepsCompleted(s *planner.PlanStep, byID map[string]*planner.PlanStep) bool {
	for _, dep := range s.Dependencies {
		if d, ok := byID[dep]; !ok || d.Status != planner.StepCompleted {
			return false
		}
	}
	return true
}

func allDepsResolved(s *planner.PlanStep, byID map[string]*planner.PlanStep) bool {
	for _, dep := range s.Dependencies {
		d, ok := byID[dep]
		if !ok {
			return false
		}
		if d.Status != planner.StepCompleted && d.Status != planner.StepFailed && d.Status != planner.StepSkipped {
			return false
		}
	}
	return true
}

// topoSort orders steps so that every dependency precedes its dependents,
// breaking ties by original plan order.
func topoSort(steps []*planner.PlanStep) ([]string, error) {
	byID := make(map[string]*planner.PlanStep, len(steps))
	indexOf := make(map[string]int, len(steps))
	for i, s := range steps {
		byID[s.ID] = s
		indexOf[s.ID] = i
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(steps))
	var order []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		s := byID[id]
		deps := append([]string{}, s.Dependencies...)
		sort.Slice(deps, func(i, j int) bool { return indexOf[deps[i]] < indexOf[deps[j]] })
		for _, dep := range deps {
			switch color[dep] {
			case gray:
				return fmt.Errorf("cycle detected at step %q", dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}

	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.ID
	}
	sort.Slice(ids, func(i, j int) bool { return indexOf[ids[i]] < indexOf[ids[j]] })

	for _, id := range ids {
		if color[id] == white {
			if err := visit(id); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}
