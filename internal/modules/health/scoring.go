package health

import (
	"math"
	"strings"
	"time"

	"github.com/upliftcs/upliftcs-backend/internal/domain/customers"
)

// ActivityWindow is the trailing window used for engagement counting.
const ActivityWindow = 30 * 24 * time.Hour

const (
	baseUsage      = 50.0
	baseEngagement = 50.0
	baseSupport    = 75.0
	baseFinancial  = 75.0
)

type Weights struct {
	Usage      float64 `json:"usage"`
	Engagement float64 `json:"engagement"`
	Support    float64 `json:"support"`
	Financial  float64 `json:"financial"`
}

var DefaultWeights = Weights{Usage: 0.30, Engagement: 0.25, Support: 0.25, Financial: 0.20}

type Component struct {
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

type Breakdown struct {
	Usage      Component `json:"usage"`
	Engagement Component `json:"engagement"`
	Support    Component `json:"support"`
	Financial  Component `json:"financial"`
}

// Result holds rounded scores. Overall is the weighted sum of the unrounded
// components, rounded once.
type Result struct {
	Overall    float64   `json:"overall_score"`
	Usage      float64   `json:"usage_score"`
	Engagement float64   `json:"engagement_score"`
	Support    float64   `json:"support_score"`
	Financial  float64   `json:"financial_score"`
	RiskLevel  string    `json:"risk_level"`
	Breakdown  Breakdown `json:"score_breakdown"`
}

// Engine computes health results. It holds no state beyond its weights and
// clock, so one instance can be shared.
type Engine struct {
	weights Weights
	now     func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{weights: DefaultWeights, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Weights() Weights { return e.weights }

// Score evaluates c and its activities at the engine clock.
func (e *Engine) Score(c *customers.Customer, activities []customers.CustomerActivity) Result {
	return ScoreAt(c, activities, e.now().UTC(), e.weights)
}

// ScoreAt is the pure scoring function.
func ScoreAt(c *customers.Customer, activities []customers.CustomerActivity, now time.Time, w Weights) Result {
	if c == nil {
		c = &customers.Customer{}
	}
	usage := usageScore(c, now)
	engagement := engagementScore(c, activities, now)
	support := supportScore(c, now)
	financial := financialScore(c)

	overall := clamp(usage*w.Usage + engagement*w.Engagement + support*w.Support + financial*w.Financial)
	overall = round1(overall)

	return Result{
		Overall:    overall,
		Usage:      round1(usage),
		Engagement: round1(engagement),
		Support:    round1(support),
		Financial:  round1(financial),
		RiskLevel:  RiskLevel(overall),
		Breakdown: Breakdown{
			Usage:      component(usage, w.Usage),
			Engagement: component(engagement, w.Engagement),
			Support:    component(support, w.Support),
			Financial:  component(financial, w.Financial),
		},
	}
}

var riskThresholds = []struct {
	min   float64
	level string
}{
	{80, customers.RiskLow},
	{60, customers.RiskMedium},
	{40, customers.RiskHigh},
}

// RiskLevel maps an overall score to a churn risk level. Thresholds are
// checked in descending order; the first match wins.
func RiskLevel(overall float64) string {
	for _, t := range riskThresholds {
		if overall >= t.min {
			return t.level
		}
	}
	return customers.RiskCritical
}

// ExpansionOpportunity classifies upsell potential from the customer and its
// rounded health result. Branch order matters.
func ExpansionOpportunity(c *customers.Customer, r Result) string {
	if c == nil {
		return customers.ExpansionNone
	}
	switch {
	case r.Overall >= 80 && r.Usage >= 75 && c.FeatureAdoptionRate >= 0.7:
		return customers.ExpansionHigh
	case r.Overall >= 70 && r.Usage >= 60 && c.MRR >= 100:
		return customers.ExpansionMedium
	case r.Overall >= 60 && r.Financial >= 70:
		return customers.ExpansionLow
	default:
		return customers.ExpansionNone
	}
}

func usageScore(c *customers.Customer, now time.Time) float64 {
	score := baseUsage
	if c.LastLogin == nil {
		score -= 20
	} else {
		switch d := DaysSince(*c.LastLogin, now); {
		case d <= 1:
			score += 25
		case d <= 7:
			score += 15
		case d <= 30:
			score += 5
		default:
			score -= 20
		}
	}
	score += clampUnit(c.FeatureAdoptionRate) * 25
	if c.OnboardingCompleted {
		score += 15
	} else if DaysSince(c.CreatedDate, now) > 14 {
		score -= 15
	}
	return clamp(score)
}

func engagementScore(c *customers.Customer, activities []customers.CustomerActivity, now time.Time) float64 {
	score := baseEngagement
	switch n := CountRecent(activities, now); {
	case n >= 10:
		score += 25
	case n >= 5:
		score += 15
	case n >= 2:
		score += 5
	default:
		score -= 10
	}
	if c.LastContactDate != nil {
		switch d := DaysSince(*c.LastContactDate, now); {
		case d <= 7:
			score += 15
		case d <= 30:
			score += 5
		case d > 90:
			score -= 20
		}
	}
	return clamp(score)
}

func supportScore(c *customers.Customer, now time.Time) float64 {
	score := baseSupport
	switch n := c.SupportTicketsCount; {
	case n <= 0:
		score += 10
	case n <= 2:
		score += 5
	case n <= 5:
		score -= 5
	default:
		score -= 15
	}
	if c.LastSupportTicket != nil {
		switch d := DaysSince(*c.LastSupportTicket, now); {
		case d <= 7:
			score -= 10
		case d > 90:
			score += 10
		}
	}
	return clamp(score)
}

func financialScore(c *customers.Customer) float64 {
	score := baseFinancial
	switch m := c.MRR; {
	case m >= 500:
		score += 15
	case m >= 100:
		score += 10
	case m >= 50:
		score += 5
	case m < 20:
		score -= 10
	}
	plan := strings.ToLower(c.PlanType)
	switch {
	case strings.Contains(plan, "enterprise") || strings.Contains(plan, "pro"):
		score += 10
	case strings.Contains(plan, "trial") || strings.Contains(plan, "free"):
		score -= 15
	}
	// Unset or zero time-to-value carries no signal.
	if c.TimeToValueDays != nil && *c.TimeToValueDays > 0 {
		switch ttv := *c.TimeToValueDays; {
		case ttv <= 7:
			score += 10
		case ttv <= 30:
			score += 5
		case ttv > 90:
			score -= 10
		}
	}
	return clamp(score)
}

// DaysSince returns whole days elapsed from t to now, truncated.
func DaysSince(t, now time.Time) int {
	return int(math.Floor(now.Sub(t).Hours() / 24))
}

// CountRecent counts activities inside the trailing window ending at now.
func CountRecent(activities []customers.CustomerActivity, now time.Time) int {
	cutoff := now.Add(-ActivityWindow)
	n := 0
	for _, a := range activities {
		if a.Timestamp.After(cutoff) && !a.Timestamp.After(now) {
			n++
		}
	}
	return n
}

func component(score, weight float64) Component {
	return Component{Score: round1(score), Weight: weight, Contribution: round1(score * weight)}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
