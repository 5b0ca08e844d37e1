package health

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/upliftcs/upliftcs-backend/internal/domain/customers"
)

type scoringInput struct {
	customer   customers.Customer
	activities []customers.CustomerActivity
}

func genScoringInput() gopter.Gen {
	plans := []interface{}{"", "free", "trial", "starter", "pro", "Enterprise Plus"}
	return gopter.CombineGens(
		gen.IntRange(0, 800),           // account age days
		gen.IntRange(-1, 120),          // last login days, -1 = never
		gen.Float64Range(-0.5, 1.5),    // adoption (out of range on purpose)
		gen.Bool(),                     // onboarding
		gen.IntRange(0, 40),            // activity count
		gen.IntRange(0, 25),            // tickets
		gen.Float64Range(0, 5000),      // mrr
		gen.OneConstOf(plans...),       // plan
		gen.IntRange(-1, 200),          // ttv days, -1 = unset
		gen.IntRange(-1, 200),          // last contact days, -1 = never
	).Map(func(v []interface{}) scoringInput {
		c := customers.Customer{
			CreatedDate:         testNow.Add(-days(v[0].(int))),
			FeatureAdoptionRate: v[2].(float64),
			OnboardingCompleted: v[3].(bool),
			SupportTicketsCount: v[5].(int),
			MRR:                 v[6].(float64),
			PlanType:            v[7].(string),
		}
		if d := v[1].(int); d >= 0 {
			c.LastLogin = ago(days(d))
		}
		if d := v[8].(int); d >= 0 {
			c.TimeToValueDays = &d
		}
		if d := v[9].(int); d >= 0 {
			c.LastContactDate = ago(days(d))
		}
		acts := make([]customers.CustomerActivity, 0, v[4].(int))
		for i := 0; i < v[4].(int); i++ {
			acts = append(acts, customers.CustomerActivity{Timestamp: testNow.Add(-time.Duration(i) * 20 * time.Hour)})
		}
		return scoringInput{customer: c, activities: acts}
	})
}

func inRange(v float64) bool { return v >= 0 && v <= 100 }

func TestScoringProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("every score is clamped to [0,100]", prop.ForAll(
		func(in scoringInput) bool {
			r := ScoreAt(&in.customer, in.activities, testNow, DefaultWeights)
			return inRange(r.Overall) && inRange(r.Usage) && inRange(r.Engagement) && inRange(r.Support) && inRange(r.Financial)
		},
		genScoringInput(),
	))

	properties.Property("overall is the weighted sum rounded to one decimal", prop.ForAll(
		func(in scoringInput) bool {
			c := &in.customer
			w := DefaultWeights
			sum := usageScore(c, testNow)*w.Usage +
				engagementScore(c, in.activities, testNow)*w.Engagement +
				supportScore(c, testNow)*w.Support +
				financialScore(c)*w.Financial
			r := ScoreAt(c, in.activities, testNow, w)
			return r.Overall == math.Round(sum*10)/10
		},
		genScoringInput(),
	))

	properties.Property("risk level is a function of overall", prop.ForAll(
		func(in scoringInput) bool {
			r := ScoreAt(&in.customer, in.activities, testNow, DefaultWeights)
			return r.RiskLevel == RiskLevel(r.Overall)
		},
		genScoringInput(),
	))

	properties.Property("scoring is deterministic", prop.ForAll(
		func(in scoringInput) bool {
			a := ScoreAt(&in.customer, in.activities, testNow, DefaultWeights)
			b := ScoreAt(&in.customer, in.activities, testNow, DefaultWeights)
			return a == b
		},
		genScoringInput(),
	))

	properties.Property("risk thresholds are monotone", prop.ForAll(
		func(a, b float64) bool {
			order := map[string]int{customers.RiskLow: 0, customers.RiskMedium: 1, customers.RiskHigh: 2, customers.RiskCritical: 3}
			if a > b {
				a, b = b, a
			}
			return order[RiskLevel(a)] >= order[RiskLevel(b)]
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}
