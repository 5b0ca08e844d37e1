package engine

import (
	"context"
	"testing"
	"time"
)

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "execution:a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, "execution:a", time.Minute); ok {
		t.Fatalf("second lock on held key: want refused")
	}
	if _, ok, _ := l.TryLock(ctx, "execution:b", time.Minute); !ok {
		t.Fatalf("other key: want granted")
	}

	unlock()
	unlock()
	relock, ok, _ := l.TryLock(ctx, "execution:a", time.Minute)
	if !ok {
		t.Fatalf("lock after unlock: want granted")
	}
	// A stale unlock must not release the new holder.
	unlock()
	if _, ok, _ := l.TryLock(ctx, "execution:a", time.Minute); ok {
		t.Fatalf("stale unlock released the key")
	}
	relock()
}

type stubStep struct{ typ string }

func (s stubStep) Type() string                              { return s.typ }
func (s stubStep) Run(context.Context, StepInput) StepOutcome { return StepOutcome{Success: true} }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(stubStep{typ: "sms"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(stubStep{typ: "sms"}); err == nil {
		t.Fatalf("duplicate Register: want error")
	}
	if err := r.Register(stubStep{}); err == nil {
		t.Fatalf("empty type: want error")
	}
	if _, ok := r.Get("sms"); !ok {
		t.Fatalf("Get sms: want ok")
	}
	if _, ok := r.Get("fax"); ok {
		t.Fatalf("Get fax: want missing")
	}

	def := DefaultRegistry(NewEmailComposer(nil, nil, EmailConfig{}))
	for _, typ := range []string{"email", "task", "wait", "condition"} {
		if _, ok := def.Get(typ); !ok {
			t.Fatalf("default registry missing %s", typ)
		}
	}
}
