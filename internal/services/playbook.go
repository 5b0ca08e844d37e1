package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/upliftcs/upliftcs-backend/internal/data/db"
	"github.com/upliftcs/upliftcs-backend/internal/data/repos"
	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	pb "github.com/upliftcs/upliftcs-backend/internal/domain/playbooks"
	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/conditions"
	"github.com/upliftcs/upliftcs-backend/internal/modules/playbook/engine"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/ctxutil"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/dbctx"
	apperr "github.com/upliftcs/upliftcs-backend/internal/pkg/errors"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

const recentExecutionsLimit = 10

// ValidationErrors carries every field problem of a rejected definition.
type ValidationErrors []conditions.ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "invalid playbook: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() error { return apperr.ErrInvalidArgument }

// Details exposes the field list to the HTTP error envelope.
func (v ValidationErrors) Details() any { return []conditions.ValidationError(v) }

type PlaybookUpdate struct {
	Name              *string        `json:"name"`
	Description       *string        `json:"description"`
	IsActive          *bool          `json:"is_active"`
	Priority          *int           `json:"priority"`
	TriggerConditions map[string]any `json:"trigger_conditions"`
}

type Performance struct {
	repos.ExecutionStats
	SuccessRate     float64 `json:"success_rate"`
	ActivePlaybooks *int64  `json:"active_playbooks,omitempty"`
	TotalPlaybooks  *int64  `json:"total_playbooks,omitempty"`
}

type PlaybookView struct {
	*types.Playbook
	Performance      Performance                `json:"performance"`
	RecentExecutions []*types.PlaybookExecution `json:"recent_executions,omitempty"`
}

type EvaluateReport struct {
	Evaluated int `json:"customers_evaluated"`
	Started   int `json:"executions_started"`
	Errors    int `json:"errors"`
}

type TriggerReport struct {
	Started []*types.PlaybookExecution `json:"executions"`
	Skipped int                        `json:"skipped"`
}

type SeedReport struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

type PlaybookService interface {
	ListPlaybooks(ctx context.Context, f repos.PlaybookFilter) ([]PlaybookView, error)
	GetPlaybook(ctx context.Context, id uuid.UUID) (*PlaybookView, error)
	CreatePlaybook(ctx context.Context, d engine.Definition) (*types.Playbook, error)
	UpdatePlaybook(ctx context.Context, id uuid.UUID, in PlaybookUpdate) (*types.Playbook, error)
	EvaluateAll(ctx context.Context, customerIDs []uuid.UUID) (EvaluateReport, error)
	TriggerForCustomers(ctx context.Context, playbookID uuid.UUID, customerIDs []uuid.UUID) (TriggerReport, error)
	ExecutePending(ctx context.Context) (engine.SweepResult, error)
	Pause(ctx context.Context, executionID uuid.UUID) (engine.TransitionResult, error)
	Resume(ctx context.Context, executionID uuid.UUID) (engine.TransitionResult, error)
	InitializeDefaults(ctx context.Context) (SeedReport, error)
	Performance(ctx context.Context, playbookID uuid.UUID) (Performance, error)
	ListExecutions(ctx context.Context, f repos.ExecutionFilter) ([]*types.PlaybookExecution, int64, error)
	GetExecution(ctx context.Context, id uuid.UUID) (*types.PlaybookExecution, error)
}

type PlaybookServiceConfig struct {
	// EvaluateConcurrency bounds customers evaluated at once.
	EvaluateConcurrency int
	PageSize            int
}

type playbookService struct {
	db         *gorm.DB
	log        *logger.Logger
	customers  repos.CustomerRepo
	playbooks  repos.PlaybookRepo
	executions repos.ExecutionRepo
	engine     *engine.Engine
	cfg        PlaybookServiceConfig
}

func NewPlaybookService(db *gorm.DB, log *logger.Logger, customerRepo repos.CustomerRepo, playbookRepo repos.PlaybookRepo, executionRepo repos.ExecutionRepo, eng *engine.Engine, cfg PlaybookServiceConfig) PlaybookService {
	if cfg.EvaluateConcurrency <= 0 {
		cfg.EvaluateConcurrency = 4
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	return &playbookService{
		db:         db,
		log:        log.With("service", "PlaybookService"),
		customers:  customerRepo,
		playbooks:  playbookRepo,
		executions: executionRepo,
		engine:     eng,
		cfg:        cfg,
	}
}

func (s *playbookService) ListPlaybooks(ctx context.Context, f repos.PlaybookFilter) ([]PlaybookView, error) {
	ctx = ctxutil.Default(ctx)
	if f.Category != "" && !pb.IsCategory(f.Category) {
		return nil, fmt.Errorf("unknown category %q: %w", f.Category, apperr.ErrInvalidArgument)
	}
	list, err := s.playbooks.List(dbctx.Context{Ctx: ctx}, f)
	if err != nil {
		return nil, fmt.Errorf("list playbooks: %w", err)
	}
	out := make([]PlaybookView, 0, len(list))
	for _, p := range list {
		perf, err := s.stats(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, PlaybookView{Playbook: p, Performance: perf})
	}
	return out, nil
}

func (s *playbookService) GetPlaybook(ctx context.Context, id uuid.UUID) (*PlaybookView, error) {
	ctx = ctxutil.Default(ctx)
	dbc := dbctx.Context{Ctx: ctx}
	p, err := s.playbooks.GetByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("load playbook: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("playbook %s: %w", id, apperr.ErrNotFound)
	}
	perf, err := s.stats(ctx, id)
	if err != nil {
		return nil, err
	}
	recent, _, err := s.executions.List(dbc, repos.ExecutionFilter{PlaybookID: id, Limit: recentExecutionsLimit})
	if err != nil {
		return nil, fmt.Errorf("recent executions: %w", err)
	}
	return &PlaybookView{Playbook: p, Performance: perf, RecentExecutions: recent}, nil
}

func (s *playbookService) CreatePlaybook(ctx context.Context, d engine.Definition) (*types.Playbook, error) {
	ctx = ctxutil.Default(ctx)
	if problems := engine.ValidateDefinition(d); len(problems) > 0 {
		return nil, ValidationErrors(problems)
	}
	dbc := dbctx.Context{Ctx: ctx}
	name := strings.TrimSpace(d.Name)
	existing, err := s.playbooks.GetByName(dbc, name)
	if err != nil {
		return nil, fmt.Errorf("lookup playbook: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("playbook %q: %w", name, apperr.ErrConflict)
	}
	p := d.ToPlaybook()
	if err := s.playbooks.Create(dbc, p); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("playbook %q: %w", name, apperr.ErrConflict)
		}
		s.log.Error("Failed to create playbook", "name", name, "error", err)
		return nil, fmt.Errorf("create playbook: %w", err)
	}
	s.log.Info("Playbook created", "playbook_id", p.ID, "name", p.Name, "steps", len(p.Steps))
	return p, nil
}

func (s *playbookService) UpdatePlaybook(ctx context.Context, id uuid.UUID, in PlaybookUpdate) (*types.Playbook, error) {
	ctx = ctxutil.Default(ctx)
	dbc := dbctx.Context{Ctx: ctx}
	p, err := s.playbooks.GetByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("load playbook: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("playbook %s: %w", id, apperr.ErrNotFound)
	}

	var problems ValidationErrors
	updates := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			problems = append(problems, conditions.ValidationError{Field: "name", Description: "name must not be blank"})
		} else if name != p.Name {
			other, err := s.playbooks.GetByName(dbc, name)
			if err != nil {
				return nil, fmt.Errorf("lookup playbook: %w", err)
			}
			if other != nil && other.ID != id {
				return nil, fmt.Errorf("playbook %q: %w", name, apperr.ErrConflict)
			}
			updates["name"] = name
		}
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if in.Priority != nil {
		if *in.Priority < 1 || *in.Priority > 10 {
			problems = append(problems, conditions.ValidationError{Field: "priority", Description: "priority must be between 1 and 10"})
		}
		updates["priority"] = *in.Priority
	}
	if in.TriggerConditions != nil {
		if len(in.TriggerConditions) == 0 {
			problems = append(problems, conditions.ValidationError{Field: "trigger_conditions", Description: "trigger_conditions must not be empty"})
		}
		for _, ve := range conditions.ValidateMap(in.TriggerConditions) {
			ve.Field = "trigger_conditions." + ve.Field
			problems = append(problems, ve)
		}
		raw, err := json.Marshal(in.TriggerConditions)
		if err != nil {
			problems = append(problems, conditions.ValidationError{Field: "trigger_conditions", Description: err.Error()})
		}
		updates["trigger_conditions"] = datatypes.JSON(raw)
	}
	if len(problems) > 0 {
		return nil, problems
	}
	if len(updates) == 0 {
		return p, nil
	}
	if err := s.playbooks.UpdateFields(dbc, id, updates); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("playbook name: %w", apperr.ErrConflict)
		}
		return nil, fmt.Errorf("update playbook: %w", err)
	}
	s.log.Info("Playbook updated", "playbook_id", id, "fields", len(updates))
	return s.playbooks.GetByID(dbc, id)
}

// EvaluateAll runs the matcher for the given customers, or every customer
// when customerIDs is empty, and starts one execution per match. A failure
// for one customer is logged and counted; the rest still run.
func (s *playbookService) EvaluateAll(ctx context.Context, customerIDs []uuid.UUID) (EvaluateReport, error) {
	ctx = ctxutil.Default(ctx)
	dbc := dbctx.Context{Ctx: ctx}
	candidates, err := s.playbooks.List(dbc, repos.PlaybookFilter{ActiveOnly: true})
	if err != nil {
		return EvaluateReport{}, fmt.Errorf("list active playbooks: %w", err)
	}

	var evaluated, started, failures atomic.Int64
	evalPage := func(ids []uuid.UUID) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.EvaluateConcurrency)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				n, err := s.evaluateOne(gctx, id, candidates)
				if err != nil {
					failures.Add(1)
					s.log.Warn("Trigger evaluation failed", "customer_id", id, "error", err)
					return nil
				}
				evaluated.Add(1)
				started.Add(int64(n))
				return nil
			})
		}
		return g.Wait()
	}

	if len(candidates) > 0 {
		if len(customerIDs) > 0 {
			if err := evalPage(customerIDs); err != nil {
				return EvaluateReport{}, err
			}
		} else {
			after := uuid.Nil
			for {
				if err := ctx.Err(); err != nil {
					return EvaluateReport{}, err
				}
				ids, err := s.customers.ListIDs(dbc, after, s.cfg.PageSize)
				if err != nil {
					return EvaluateReport{}, fmt.Errorf("list customers: %w", err)
				}
				if len(ids) == 0 {
					break
				}
				if err := evalPage(ids); err != nil {
					return EvaluateReport{}, err
				}
				after = ids[len(ids)-1]
				if len(ids) < s.cfg.PageSize {
					break
				}
			}
		}
	}

	report := EvaluateReport{
		Evaluated: int(evaluated.Load()),
		Started:   int(started.Load()),
		Errors:    int(failures.Load()),
	}
	s.log.Info("Trigger evaluation finished",
		"customers", report.Evaluated,
		"started", report.Started,
		"errors", report.Errors,
		"playbooks", len(candidates),
	)
	return report, nil
}

func (s *playbookService) evaluateOne(ctx context.Context, customerID uuid.UUID, candidates []*types.Playbook) (int, error) {
	c, err := s.customers.GetByID(dbctx.Context{Ctx: ctx}, customerID)
	if err != nil {
		return 0, fmt.Errorf("load customer: %w", err)
	}
	if c == nil {
		return 0, fmt.Errorf("customer %s: %w", customerID, apperr.ErrNotFound)
	}
	matched, err := s.engine.Evaluate(ctx, c, candidates)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range matched {
		res, err := s.engine.StartFor(ctx, c, p)
		if err != nil {
			return n, err
		}
		if res.OK {
			n++
		}
	}
	return n, nil
}

// TriggerForCustomers starts the playbook for each listed customer
// regardless of its trigger conditions or active flag.
func (s *playbookService) TriggerForCustomers(ctx context.Context, playbookID uuid.UUID, customerIDs []uuid.UUID) (TriggerReport, error) {
	ctx = ctxutil.Default(ctx)
	if len(customerIDs) == 0 {
		return TriggerReport{}, fmt.Errorf("customer_ids must not be empty: %w", apperr.ErrInvalidArgument)
	}
	dbc := dbctx.Context{Ctx: ctx}
	p, err := s.playbooks.GetByID(dbc, playbookID)
	if err != nil {
		return TriggerReport{}, fmt.Errorf("load playbook: %w", err)
	}
	if p == nil {
		return TriggerReport{}, fmt.Errorf("playbook %s: %w", playbookID, apperr.ErrNotFound)
	}
	found, err := s.customers.GetByIDs(dbc, customerIDs)
	if err != nil {
		return TriggerReport{}, fmt.Errorf("load customers: %w", err)
	}

	report := TriggerReport{Started: []*types.PlaybookExecution{}}
	report.Skipped = len(customerIDs) - len(found)
	for _, c := range found {
		res, err := s.engine.StartFor(ctx, c, p)
		if err != nil {
			return report, err
		}
		if !res.OK {
			report.Skipped++
			continue
		}
		report.Started = append(report.Started, res.Execution)
	}
	s.log.Info("Playbook triggered",
		"playbook_id", playbookID,
		"started", len(report.Started),
		"skipped", report.Skipped,
	)
	return report, nil
}

func (s *playbookService) ExecutePending(ctx context.Context) (engine.SweepResult, error) {
	return s.engine.ExecutePendingSteps(ctxutil.Default(ctx))
}

func (s *playbookService) Pause(ctx context.Context, executionID uuid.UUID) (engine.TransitionResult, error) {
	return s.engine.Pause(ctxutil.Default(ctx), executionID)
}

func (s *playbookService) Resume(ctx context.Context, executionID uuid.UUID) (engine.TransitionResult, error) {
	return s.engine.Resume(ctxutil.Default(ctx), executionID)
}

// InitializeDefaults creates every embedded template whose name is not taken.
func (s *playbookService) InitializeDefaults(ctx context.Context) (SeedReport, error) {
	ctx = ctxutil.Default(ctx)
	templates, err := engine.DefaultTemplates()
	if err != nil {
		return SeedReport{}, fmt.Errorf("load templates: %w", err)
	}
	dbc := dbctx.Context{Ctx: ctx}
	var report SeedReport
	for _, d := range templates {
		existing, err := s.playbooks.GetByName(dbc, d.Name)
		if err != nil {
			return report, fmt.Errorf("lookup playbook %q: %w", d.Name, err)
		}
		if existing != nil {
			report.Skipped++
			continue
		}
		if err := s.playbooks.Create(dbc, d.ToPlaybook()); err != nil {
			if db.IsUniqueViolation(err) {
				report.Skipped++
				continue
			}
			return report, fmt.Errorf("create playbook %q: %w", d.Name, err)
		}
		report.Created++
	}
	s.log.Info("Default playbooks initialized", "created", report.Created, "skipped", report.Skipped)
	return report, nil
}

// Performance reports one playbook, or all of them when playbookID is nil.
func (s *playbookService) Performance(ctx context.Context, playbookID uuid.UUID) (Performance, error) {
	ctx = ctxutil.Default(ctx)
	dbc := dbctx.Context{Ctx: ctx}
	if playbookID != uuid.Nil {
		p, err := s.playbooks.GetByID(dbc, playbookID)
		if err != nil {
			return Performance{}, fmt.Errorf("load playbook: %w", err)
		}
		if p == nil {
			return Performance{}, fmt.Errorf("playbook %s: %w", playbookID, apperr.ErrNotFound)
		}
		return s.stats(ctx, playbookID)
	}
	perf, err := s.stats(ctx, uuid.Nil)
	if err != nil {
		return Performance{}, err
	}
	active, err := s.playbooks.Count(dbc, true)
	if err != nil {
		return Performance{}, fmt.Errorf("count playbooks: %w", err)
	}
	total, err := s.playbooks.Count(dbc, false)
	if err != nil {
		return Performance{}, fmt.Errorf("count playbooks: %w", err)
	}
	perf.ActivePlaybooks = &active
	perf.TotalPlaybooks = &total
	return perf, nil
}

func (s *playbookService) stats(ctx context.Context, playbookID uuid.UUID) (Performance, error) {
	st, err := s.executions.Stats(dbctx.Context{Ctx: ctx}, playbookID)
	if err != nil {
		return Performance{}, fmt.Errorf("execution stats: %w", err)
	}
	return Performance{ExecutionStats: st, SuccessRate: st.SuccessRate()}, nil
}

func (s *playbookService) ListExecutions(ctx context.Context, f repos.ExecutionFilter) ([]*types.PlaybookExecution, int64, error) {
	if f.Status != "" && !pb.IsExecutionStatus(f.Status) {
		return nil, 0, fmt.Errorf("unknown execution status %q: %w", f.Status, apperr.ErrInvalidArgument)
	}
	return s.executions.List(dbctx.Context{Ctx: ctxutil.Default(ctx)}, f)
}

func (s *playbookService) GetExecution(ctx context.Context, id uuid.UUID) (*types.PlaybookExecution, error) {
	exec, err := s.executions.GetByID(dbctx.Context{Ctx: ctxutil.Default(ctx)}, id, true)
	if err != nil {
		return nil, fmt.Errorf("load execution: %w", err)
	}
	if exec == nil {
		return nil, fmt.Errorf("execution %s: %w", id, apperr.ErrNotFound)
	}
	return exec, nil
}
