package health

import (
	"testing"
	"time"

	"github.com/upliftcs/upliftcs-backend/internal/domain/customers"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) *time.Time {
	t := testNow.Add(-d)
	return &t
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func activitiesAgo(offsets ...time.Duration) []customers.CustomerActivity {
	out := make([]customers.CustomerActivity, 0, len(offsets))
	for _, off := range offsets {
		out = append(out, customers.CustomerActivity{ActivityType: customers.ActivityLogin, Timestamp: testNow.Add(-off)})
	}
	return out
}

func TestScoreAt(t *testing.T) {
	ttvFast := 5
	ttvSlow := 45

	many := make([]time.Duration, 0, 12)
	for i := 0; i < 12; i++ {
		many = append(many, days(i+1))
	}

	cases := []struct {
		name       string
		customer   customers.Customer
		activities []customers.CustomerActivity
		want       Result
		expansion  string
	}{
		{
			name: "healthy enterprise clamps to 100",
			customer: customers.Customer{
				CreatedDate:         testNow.Add(-days(400)),
				LastLogin:           ago(2 * time.Hour),
				FeatureAdoptionRate: 0.8,
				OnboardingCompleted: true,
				LastContactDate:     ago(days(3)),
				SupportTicketsCount: 1,
				LastSupportTicket:   ago(days(120)),
				MRR:                 800,
				PlanType:            "Enterprise",
				TimeToValueDays:     &ttvFast,
			},
			activities: activitiesAgo(many...),
			want:       Result{Overall: 95, Usage: 100, Engagement: 90, Support: 90, Financial: 100, RiskLevel: customers.RiskLow},
			expansion:  customers.ExpansionHigh,
		},
		{
			name: "never logged in free trial",
			customer: customers.Customer{
				CreatedDate:         testNow.Add(-days(20)),
				FeatureAdoptionRate: 0.1,
				SupportTicketsCount: 7,
				LastSupportTicket:   ago(days(2)),
				PlanType:            "free_trial",
			},
			want:      Result{Overall: 37.8, Usage: 17.5, Engagement: 40, Support: 50, Financial: 50, RiskLevel: customers.RiskCritical},
			expansion: customers.ExpansionNone,
		},
		{
			name: "mid account with stale activity outside window",
			customer: customers.Customer{
				CreatedDate:         testNow.Add(-days(100)),
				LastLogin:           ago(days(10)),
				FeatureAdoptionRate: 0.4,
				OnboardingCompleted: true,
				LastContactDate:     ago(days(45)),
				SupportTicketsCount: 3,
				LastSupportTicket:   ago(days(30)),
				MRR:                 150,
				PlanType:            "pro",
				TimeToValueDays:     &ttvSlow,
			},
			activities: activitiesAgo(days(1), days(5), days(29), days(40)),
			want:       Result{Overall: 74.3, Usage: 80, Engagement: 55, Support: 70, Financial: 95, RiskLevel: customers.RiskMedium},
			expansion:  customers.ExpansionMedium,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.customer
			got := ScoreAt(&c, tc.activities, testNow, DefaultWeights)
			if got.Overall != tc.want.Overall {
				t.Fatalf("overall: want=%v got=%v", tc.want.Overall, got.Overall)
			}
			if got.Usage != tc.want.Usage || got.Engagement != tc.want.Engagement || got.Support != tc.want.Support || got.Financial != tc.want.Financial {
				t.Fatalf("components: want=%+v got=%+v", tc.want, got)
			}
			if got.RiskLevel != tc.want.RiskLevel {
				t.Fatalf("risk: want=%s got=%s", tc.want.RiskLevel, got.RiskLevel)
			}
			if exp := ExpansionOpportunity(&c, got); exp != tc.expansion {
				t.Fatalf("expansion: want=%s got=%s", tc.expansion, exp)
			}
		})
	}
}

func TestBreakdownCarriesWeights(t *testing.T) {
	c := customers.Customer{CreatedDate: testNow, LastLogin: ago(time.Hour), OnboardingCompleted: true, MRR: 600, PlanType: "enterprise"}
	got := ScoreAt(&c, nil, testNow, DefaultWeights)
	if got.Breakdown.Usage.Weight != 0.30 || got.Breakdown.Financial.Weight != 0.20 {
		t.Fatalf("weights not carried: %+v", got.Breakdown)
	}
	if got.Breakdown.Usage.Score != got.Usage {
		t.Fatalf("breakdown usage: want=%v got=%v", got.Usage, got.Breakdown.Usage.Score)
	}
	// usage 90 * 0.3
	if got.Breakdown.Usage.Contribution != 27 {
		t.Fatalf("usage contribution: want=27 got=%v", got.Breakdown.Usage.Contribution)
	}
}

func TestRiskLevelDescendingThresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{100, customers.RiskLow},
		{85, customers.RiskLow},
		{80, customers.RiskLow},
		{79.9, customers.RiskMedium},
		{65, customers.RiskMedium},
		{60, customers.RiskMedium},
		{45, customers.RiskHigh},
		{40, customers.RiskHigh},
		{39.9, customers.RiskCritical},
		{10, customers.RiskCritical},
		{0, customers.RiskCritical},
	}
	for _, tc := range cases {
		if got := RiskLevel(tc.score); got != tc.want {
			t.Fatalf("RiskLevel(%v): want=%s got=%s", tc.score, tc.want, got)
		}
	}
}

func TestExpansionBranchOrder(t *testing.T) {
	cases := []struct {
		name     string
		customer customers.Customer
		result   Result
		want     string
	}{
		{"high", customers.Customer{FeatureAdoptionRate: 0.75}, Result{Overall: 85, Usage: 80}, customers.ExpansionHigh},
		{"medium wins over low", customers.Customer{MRR: 150}, Result{Overall: 72, Usage: 65, Financial: 90}, customers.ExpansionMedium},
		{"high misses on adoption", customers.Customer{FeatureAdoptionRate: 0.5, MRR: 100}, Result{Overall: 85, Usage: 80}, customers.ExpansionMedium},
		{"low", customers.Customer{MRR: 10}, Result{Overall: 65, Usage: 50, Financial: 70}, customers.ExpansionLow},
		{"none", customers.Customer{}, Result{Overall: 55, Usage: 90, Financial: 95}, customers.ExpansionNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.customer
			if got := ExpansionOpportunity(&c, tc.result); got != tc.want {
				t.Fatalf("want=%s got=%s", tc.want, got)
			}
		})
	}
}

func TestDaysSinceTruncates(t *testing.T) {
	if d := DaysSince(testNow.Add(-47*time.Hour), testNow); d != 1 {
		t.Fatalf("47h: want=1 got=%d", d)
	}
	if d := DaysSince(testNow.Add(-48*time.Hour), testNow); d != 2 {
		t.Fatalf("48h: want=2 got=%d", d)
	}
}

func TestEngineUsesClock(t *testing.T) {
	e := NewEngine(WithClock(func() time.Time { return testNow }))
	c := customers.Customer{CreatedDate: testNow.Add(-days(20))}
	got := e.Score(&c, nil)
	want := ScoreAt(&c, nil, testNow, DefaultWeights)
	if got.Overall != want.Overall {
		t.Fatalf("overall: want=%v got=%v", want.Overall, got.Overall)
	}
}
