package logger

import "testing"

func TestScrubMasksSensitiveKeys(t *testing.T) {
	cases := []struct {
		name string
		kv   []interface{}
		want []interface{}
	}{
		{
			name: "email redacted",
			kv:   []interface{}{"customer_email", "a@b.co", "customer_id", "c1"},
			want: []interface{}{"customer_email", redacted, "customer_id", "c1"},
		},
		{
			name: "api key redacted",
			kv:   []interface{}{"OPENAI_API_KEY", "sk-123"},
			want: []interface{}{"OPENAI_API_KEY", redacted},
		},
		{
			name: "odd trailing value kept",
			kv:   []interface{}{"step", 1, "dangling"},
			want: []interface{}{"step", 1, "dangling"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := scrub(tc.kv)
			if len(got) != len(tc.want) {
				t.Fatalf("len: want=%d got=%d", len(tc.want), len(got))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("idx %d: want=%v got=%v", i, tc.want[i], got[i])
				}
			}
		})
	}
}

func TestScrubNestedMap(t *testing.T) {
	got := scrub([]interface{}{"payload", map[string]interface{}{"email": "x@y.z", "name": "Acme"}})
	m, ok := got[1].(map[string]interface{})
	if !ok {
		t.Fatalf("expected map, got %T", got[1])
	}
	if m["email"] != redacted {
		t.Fatalf("email: want=%v got=%v", redacted, m["email"])
	}
	if m["name"] != "Acme" {
		t.Fatalf("name: want=Acme got=%v", m["name"])
	}
}
