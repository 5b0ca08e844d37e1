package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"

	types "github.com/upliftcs/upliftcs-backend/internal/domain"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/ctxutil"
	"github.com/upliftcs/upliftcs-backend/internal/pkg/logger"
)

const ModelFallback = "fallback"

const emailSystemPrompt = "You are an expert Customer Success Manager writing personalized emails. Always respond with valid JSON."

const maxSubjectRunes = 60

var emailSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []any{"subject", "body", "tone"},
	"properties": map[string]any{
		"subject": map[string]any{"type": "string"},
		"body":    map[string]any{"type": "string"},
		"tone":    map[string]any{"type": "string"},
	},
}

var emailSchemaLoader = gojsonschema.NewGoLoader(emailSchema)

type EmailContent struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Tone    string `json:"tone"`
	Model   string `json:"model_used"`
	// Error is the generator failure that forced the template, if any.
	Error string `json:"error,omitempty"`
}

type EmailConfig struct {
	Model      string
	Timeout    time.Duration
	OnFallback func(reason string)
}

// EmailComposer asks the content generator for a personalized email and
// falls back to a fixed template on any failure. Compose never fails.
type EmailComposer struct {
	log        *logger.Logger
	gen        Generator
	model      string
	timeout    time.Duration
	onFallback func(reason string)
}

func NewEmailComposer(baseLog *logger.Logger, gen Generator, cfg EmailConfig) *EmailComposer {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gpt-4.1-mini"
	}
	return &EmailComposer{
		log:        baseLog.With("component", "EmailComposer"),
		gen:        gen,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		onFallback: cfg.OnFallback,
	}
}

func (m *EmailComposer) Compose(ctx context.Context, c *types.Customer, step types.PlaybookStep, cfg emailConfig, now time.Time) EmailContent {
	ctx = ctxutil.Default(ctx)
	if m.gen == nil {
		return m.fallback(c, step, errors.New("content generator not configured"))
	}
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	obj, err := m.gen.GenerateJSON(callCtx, emailSystemPrompt, emailPrompt(c, step, cfg, now), "customer_email", emailSchema)
	if err != nil {
		return m.fallback(c, step, err)
	}
	res, err := gojsonschema.Validate(emailSchemaLoader, gojsonschema.NewGoLoader(obj))
	if err != nil {
		return m.fallback(c, step, fmt.Errorf("validate email: %w", err))
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.Field()+": "+e.Description())
		}
		return m.fallback(c, step, fmt.Errorf("email output failed schema: %s", strings.Join(msgs, "; ")))
	}
	out := EmailContent{
		Subject: asString(obj["subject"]),
		Body:    asString(obj["body"]),
		Tone:    asString(obj["tone"]),
		Model:   m.model,
	}
	if out.Subject == "" || out.Body == "" {
		return m.fallback(c, step, errors.New("email output has empty subject or body"))
	}
	if utf8.RuneCountInString(out.Subject) > maxSubjectRunes {
		out.Subject = string([]rune(out.Subject)[:maxSubjectRunes])
	}
	return out
}

func (m *EmailComposer) fallback(c *types.Customer, step types.PlaybookStep, cause error) EmailContent {
	reason := cause.Error()
	m.log.Warn("Email generation fell back to template", "step_id", step.ID, "error", reason)
	if m.onFallback != nil {
		m.onFallback(reason)
	}
	out := FallbackEmail(c, step)
	out.Error = reason
	return out
}

// FallbackEmail is the deterministic template used whenever the generator
// cannot produce content.
func FallbackEmail(c *types.Customer, step types.PlaybookStep) EmailContent {
	name := "there"
	if c != nil && strings.TrimSpace(c.Name) != "" {
		name = c.Name
	}
	return EmailContent{
		Subject: step.Title,
		Body:    fmt.Sprintf("Hi %s,\n\n%s\n\nBest regards,\nYour Customer Success Team", name, step.Description),
		Tone:    "professional",
		Model:   ModelFallback,
	}
}

func emailPrompt(c *types.Customer, step types.PlaybookStep, cfg emailConfig, now time.Time) string {
	template := strings.TrimSpace(cfg.Template)
	if template == "" {
		template = "general"
	}
	personalization := true
	if cfg.Personalization != nil {
		personalization = *cfg.Personalization
	}
	name, company, plan := "Valued Customer", "N/A", "N/A"
	var health float64
	days := 0
	onboarded := false
	if c != nil {
		if strings.TrimSpace(c.Name) != "" {
			name = c.Name
		}
		if strings.TrimSpace(c.Company) != "" {
			company = c.Company
		}
		if strings.TrimSpace(c.PlanType) != "" {
			plan = c.PlanType
		}
		health = c.HealthScore
		days = int(math.Floor(now.Sub(c.CreatedDate).Hours() / 24))
		onboarded = c.OnboardingCompleted
	}

	var b strings.Builder
	b.WriteString("Generate a professional, personalized customer success email for the following scenario:\n\n")
	b.WriteString("Customer Information:\n")
	fmt.Fprintf(&b, "- Name: %s\n", name)
	fmt.Fprintf(&b, "- Company: %s\n", company)
	fmt.Fprintf(&b, "- Plan: %s\n", plan)
	fmt.Fprintf(&b, "- Health Score: %.1f/100\n", health)
	fmt.Fprintf(&b, "- Days as Customer: %d\n", days)
	fmt.Fprintf(&b, "- Onboarding Completed: %t\n\n", onboarded)
	b.WriteString("Email Context:\n")
	fmt.Fprintf(&b, "- Title: %s\n", step.Title)
	fmt.Fprintf(&b, "- Description: %s\n", step.Description)
	fmt.Fprintf(&b, "- Template Type: %s\n", template)
	fmt.Fprintf(&b, "- Personalization: %t\n\n", personalization)
	fmt.Fprintf(&b, "Return \"subject\" (max %d characters), \"body\" (greeting, personalized content, clear call-to-action, professional closing) and \"tone\".\n", maxSubjectRunes)
	b.WriteString("Keep the email concise, actionable, and focused on customer value.")
	return b.String()
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
