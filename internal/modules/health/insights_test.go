package health

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/upliftcs/upliftcs-backend/internal/domain/customers"
)

type fakeGenerator struct {
	out   map[string]any
	err   error
	block bool
	calls int
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.out, f.err
}

func validInsightsDoc() map[string]any {
	return map[string]any{
		"summary":             "Healthy and growing. Good candidate for an upsell conversation.",
		"key_risks":           []any{"a", "b", "c", "d"},
		"opportunities":       []any{"seat expansion"},
		"recommended_actions": []any{"book QBR", "share roadmap", "introduce premium support"},
		"priority_level":      "low",
		"next_contact_days":   float64(21),
	}
}

func TestInsightsGenerator(t *testing.T) {
	criticalResult := Result{Overall: 30, Usage: 20, Engagement: 40, Support: 45, Financial: 60, RiskLevel: customers.RiskCritical}

	cases := []struct {
		name         string
		gen          *fakeGenerator
		nilGen       bool
		wantFallback bool
		wantErrSub   string
	}{
		{name: "generator output used", gen: &fakeGenerator{out: validInsightsDoc()}},
		{name: "generator error", gen: &fakeGenerator{err: errors.New("boom")}, wantFallback: true, wantErrSub: "boom"},
		{name: "generator timeout", gen: &fakeGenerator{block: true}, wantFallback: true, wantErrSub: "deadline"},
		{name: "schema violation", gen: &fakeGenerator{out: map[string]any{"summary": "x", "priority_level": "asap"}}, wantFallback: true, wantErrSub: "invalid insights"},
		{name: "no generator", nilGen: true, wantFallback: true, wantErrSub: "not configured"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fallbacks := 0
			var gen Generator
			if !tc.nilGen {
				gen = tc.gen
			}
			g := NewInsightsGenerator(nil, gen, InsightsConfig{
				Model:      "test-model",
				Timeout:    20 * time.Millisecond,
				Now:        func() time.Time { return testNow },
				OnFallback: func(string) { fallbacks++ },
			})
			c := &customers.Customer{Name: "Ada", CreatedDate: testNow.Add(-days(30))}
			got := g.Generate(context.Background(), c, criticalResult, nil)

			if got.IsFallback() != tc.wantFallback {
				t.Fatalf("fallback: want=%v got=%v (%+v)", tc.wantFallback, got.IsFallback(), got)
			}
			if !got.GeneratedAt.Equal(testNow) {
				t.Fatalf("generated_at: want=%s got=%s", testNow, got.GeneratedAt)
			}
			if tc.wantFallback {
				if fallbacks != 1 {
					t.Fatalf("fallback hook: want=1 got=%d", fallbacks)
				}
				if !strings.Contains(got.Error, tc.wantErrSub) {
					t.Fatalf("error: want substring %q got %q", tc.wantErrSub, got.Error)
				}
				if got.PriorityLevel != customers.PriorityUrgent || got.NextContactDays != 1 {
					t.Fatalf("critical fallback priority/contact: got %s/%d", got.PriorityLevel, got.NextContactDays)
				}
				return
			}
			if got.ModelUsed != "test-model" {
				t.Fatalf("model: want=test-model got=%s", got.ModelUsed)
			}
			if len(got.KeyRisks) != 3 {
				t.Fatalf("key risks truncated: want=3 got=%d", len(got.KeyRisks))
			}
			if got.NextContactDays != 21 {
				t.Fatalf("next contact: want=21 got=%d", got.NextContactDays)
			}
		})
	}
}

func TestFallbackInsightsRules(t *testing.T) {
	c := &customers.Customer{FeatureAdoptionRate: 0.3}
	r := Result{Overall: 72.5, Usage: 40, Engagement: 45, Support: 80, Financial: 90, RiskLevel: customers.RiskMedium}
	got := FallbackInsights(c, r, testNow)

	if got.Summary != "Customer health score is 72.5/100 with medium churn risk. Requires attention based on current metrics." {
		t.Fatalf("summary: %q", got.Summary)
	}
	wantRisks := []string{
		"Low product usage indicates potential disengagement",
		"Poor communication engagement suggests relationship issues",
	}
	if len(got.KeyRisks) != len(wantRisks) {
		t.Fatalf("risks: want=%v got=%v", wantRisks, got.KeyRisks)
	}
	for i := range wantRisks {
		if got.KeyRisks[i] != wantRisks[i] {
			t.Fatalf("risk %d: want=%q got=%q", i, wantRisks[i], got.KeyRisks[i])
		}
	}
	if len(got.Opportunities) != 3 {
		t.Fatalf("opportunities: want 3 got=%v", got.Opportunities)
	}
	if len(got.RecommendedActions) != 2 {
		t.Fatalf("medium risk actions: want 2 got=%v", got.RecommendedActions)
	}
	if got.PriorityLevel != customers.PriorityMedium || got.NextContactDays != 14 {
		t.Fatalf("medium priority/contact: got %s/%d", got.PriorityLevel, got.NextContactDays)
	}
	if got.ModelUsed != ModelFallback {
		t.Fatalf("model: want=fallback got=%s", got.ModelUsed)
	}
}

func TestHighRiskFallbackAddsEscalation(t *testing.T) {
	got := FallbackInsights(&customers.Customer{OnboardingCompleted: true, FeatureAdoptionRate: 0.9}, Result{Overall: 45, RiskLevel: customers.RiskHigh, Usage: 60, Engagement: 60, Support: 60}, testNow)
	if len(got.RecommendedActions) != 4 || got.RecommendedActions[0] != "Schedule immediate check-in call with customer" {
		t.Fatalf("actions: %v", got.RecommendedActions)
	}
	if len(got.Opportunities) != 0 {
		t.Fatalf("opportunities: want none got=%v", got.Opportunities)
	}
	if got.PriorityLevel != customers.PriorityHigh || got.NextContactDays != 3 {
		t.Fatalf("high priority/contact: got %s/%d", got.PriorityLevel, got.NextContactDays)
	}
}
