package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/upliftcs/upliftcs-backend/internal/domain/customers"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/ctxutil"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

// Generator is the content generator boundary (an LLM behind a JSON schema).
type Generator interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

const ModelFallback = "fallback"

type Insights struct {
	Summary            string    `json:"summary"`
	KeyRisks           []string  `json:"key_risks"`
	Opportunities      []string  `json:"opportunities"`
	RecommendedActions []string  `json:"recommended_actions"`
	PriorityLevel      string    `json:"priority_level"`
	NextContactDays    int       `json:"next_contact_days"`
	GeneratedAt        time.Time `json:"generated_at"`
	ModelUsed          string    `json:"model_used"`
	Error              string    `json:"error,omitempty"`
}

// IsFallback reports whether the document came from the templated path.
func (i Insights) IsFallback() bool { return i.ModelUsed == ModelFallback }

const insightsSystemPrompt = "You are an expert Customer Success Manager with 10+ years of experience. Provide practical, actionable insights in valid JSON format."

var insightsSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []any{"summary", "key_risks", "opportunities", "recommended_actions", "priority_level", "next_contact_days"},
	"properties": map[string]any{
		"summary":             map[string]any{"type": "string"},
		"key_risks":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"opportunities":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"recommended_actions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"priority_level":      map[string]any{"type": "string", "enum": []any{"low", "medium", "high", "urgent"}},
		"next_contact_days":   map[string]any{"type": "integer"},
	},
}

var insightsSchemaLoader = gojsonschema.NewGoLoader(insightsSchema)

type InsightsGenerator struct {
	log        *logger.Logger
	gen        Generator
	model      string
	timeout    time.Duration
	now        func() time.Time
	onFallback func(reason string)
}

type InsightsConfig struct {
	Model   string
	Timeout time.Duration
	Now     func() time.Time
	// OnFallback is invoked each time the templated path is used.
	OnFallback func(reason string)
}

// NewInsightsGenerator accepts a nil gen; every call then falls back.
func NewInsightsGenerator(baseLog *logger.Logger, gen Generator, cfg InsightsConfig) *InsightsGenerator {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gpt-4.1-mini"
	}
	return &InsightsGenerator{
		log:        baseLog.With("service", "InsightsGenerator"),
		gen:        gen,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		now:        cfg.Now,
		onFallback: cfg.OnFallback,
	}
}

// Generate never fails. Generator errors, timeouts and invalid output all
// yield the deterministic fallback document.
func (g *InsightsGenerator) Generate(ctx context.Context, c *customers.Customer, r Result, activities []customers.CustomerActivity) Insights {
	ctx = ctxutil.Default(ctx)
	now := g.now().UTC()
	if g.gen == nil {
		return g.fallback(c, r, now, errors.New("content generator not configured"))
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	obj, err := g.gen.GenerateJSON(callCtx, insightsSystemPrompt, insightsPrompt(c, r, activities, now), "customer_insights", insightsSchema)
	if err != nil {
		return g.fallback(c, r, now, err)
	}
	out, err := decodeInsights(obj)
	if err != nil {
		return g.fallback(c, r, now, err)
	}
	out.GeneratedAt = now
	out.ModelUsed = g.model
	return out
}

func (g *InsightsGenerator) fallback(c *customers.Customer, r Result, now time.Time, cause error) Insights {
	reason := "unknown"
	if cause != nil {
		reason = cause.Error()
	}
	g.log.Warn("Insight generation fell back to template", "risk_level", r.RiskLevel, "error", reason)
	if g.onFallback != nil {
		g.onFallback(reason)
	}
	out := FallbackInsights(c, r, now)
	out.Error = reason
	return out
}

func decodeInsights(obj map[string]any) (Insights, error) {
	res, err := gojsonschema.Validate(insightsSchemaLoader, gojsonschema.NewGoLoader(obj))
	if err != nil {
		return Insights{}, fmt.Errorf("validate insights: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Insights{}, fmt.Errorf("invalid insights document: %s", strings.Join(msgs, "; "))
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return Insights{}, err
	}
	var out Insights
	if err := json.Unmarshal(raw, &out); err != nil {
		return Insights{}, fmt.Errorf("decode insights: %w", err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return Insights{}, errors.New("insights summary empty")
	}
	if out.NextContactDays < 0 {
		return Insights{}, fmt.Errorf("next_contact_days negative: %d", out.NextContactDays)
	}
	out.KeyRisks = firstN(out.KeyRisks, 3)
	out.Opportunities = firstN(out.Opportunities, 3)
	return out, nil
}

// FallbackInsights builds the templated insight document.
func FallbackInsights(c *customers.Customer, r Result, now time.Time) Insights {
	if c == nil {
		c = &customers.Customer{}
	}
	risks := make([]string, 0, 3)
	if r.Usage < 50 {
		risks = append(risks, "Low product usage indicates potential disengagement")
	}
	if r.Engagement < 50 {
		risks = append(risks, "Poor communication engagement suggests relationship issues")
	}
	if r.Support < 50 {
		risks = append(risks, "High support ticket volume indicates product issues")
	}

	opps := make([]string, 0, 3)
	if r.Overall > 70 {
		opps = append(opps, "Strong health score indicates expansion opportunity")
	}
	if c.FeatureAdoptionRate < 0.5 {
		opps = append(opps, "Low feature adoption suggests training opportunity")
	}
	if !c.OnboardingCompleted {
		opps = append(opps, "Complete onboarding to improve customer success")
	}

	actions := make([]string, 0, 4)
	if r.RiskLevel == customers.RiskHigh || r.RiskLevel == customers.RiskCritical {
		actions = append(actions,
			"Schedule immediate check-in call with customer",
			"Review recent support tickets and resolve outstanding issues",
		)
	}
	actions = append(actions,
		"Send personalized email with usage tips and best practices",
		"Schedule quarterly business review to discuss goals",
	)

	return Insights{
		Summary:            fmt.Sprintf("Customer health score is %s/100 with %s churn risk. Requires attention based on current metrics.", formatScore(r.Overall), r.RiskLevel),
		KeyRisks:           risks,
		Opportunities:      opps,
		RecommendedActions: actions,
		PriorityLevel:      PriorityForRisk(r.RiskLevel),
		NextContactDays:    ContactDaysForRisk(r.RiskLevel),
		GeneratedAt:        now,
		ModelUsed:          ModelFallback,
	}
}

func PriorityForRisk(risk string) string {
	switch risk {
	case customers.RiskCritical:
		return customers.PriorityUrgent
	case customers.RiskHigh:
		return customers.PriorityHigh
	case customers.RiskLow:
		return customers.PriorityLow
	default:
		return customers.PriorityMedium
	}
}

func ContactDaysForRisk(risk string) int {
	switch risk {
	case customers.RiskCritical:
		return 1
	case customers.RiskHigh:
		return 3
	case customers.RiskLow:
		return 30
	default:
		return 14
	}
}

func insightsPrompt(c *customers.Customer, r Result, activities []customers.CustomerActivity, now time.Time) string {
	if c == nil {
		c = &customers.Customer{}
	}
	var b strings.Builder
	b.WriteString("As an expert Customer Success Manager, analyze this customer profile and provide actionable insights.\n\n")
	b.WriteString("Customer Profile:\n")
	fmt.Fprintf(&b, "- Name: %s (%s)\n", orUnknown(c.Name), orUnknown(c.Company))
	fmt.Fprintf(&b, "- Plan: %s ($%.2f/month)\n", orUnknown(c.PlanType), c.MRR)
	fmt.Fprintf(&b, "- Customer for: %d days\n", DaysSince(c.CreatedDate, now))
	fmt.Fprintf(&b, "- Onboarding completed: %t\n", c.OnboardingCompleted)
	fmt.Fprintf(&b, "- Feature adoption rate: %.1f%%\n", c.FeatureAdoptionRate*100)
	fmt.Fprintf(&b, "- Support tickets: %d\n", c.SupportTicketsCount)
	fmt.Fprintf(&b, "- Recent activities (30 days): %d\n\n", CountRecent(activities, now))
	b.WriteString("Health Scores:\n")
	fmt.Fprintf(&b, "- Overall Health: %s/100 (Risk: %s)\n", formatScore(r.Overall), r.RiskLevel)
	fmt.Fprintf(&b, "- Usage: %s/100\n", formatScore(r.Usage))
	fmt.Fprintf(&b, "- Engagement: %s/100\n", formatScore(r.Engagement))
	fmt.Fprintf(&b, "- Support: %s/100\n", formatScore(r.Support))
	fmt.Fprintf(&b, "- Financial: %s/100\n\n", formatScore(r.Financial))
	b.WriteString("Return a brief 2-sentence summary, up to 3 key risks, up to 3 opportunities, ")
	b.WriteString("3-5 specific recommended actions, a priority level and the number of days until the next recommended contact. ")
	b.WriteString("Focus on actionable, specific recommendations that a non-CSM manager could execute.")
	return b.String()
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func firstN(in []string, n int) []string {
	if len(in) <= n {
		return in
	}
	return in[:n]
}
