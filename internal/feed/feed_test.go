package feed

import (
	"testing"

	"github.com/punchd/punchd/internal/session"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	defer h.Close()

	a := h.Subscribe(4)
	b := h.Subscribe(4)

	h.Publish(NewSample(session.Sample{LogID: "l1", IdleSeconds: 3}))

	for name, sub := range map[string]*Subscription{"a": a, "b": b} {
		select {
		case env := <-sub.Events():
			if env.Kind != KindSample || env.Sample == nil || env.Sample.IdleSeconds != 3 {
				t.Fatalf("%s: unexpected envelope %+v", name, env)
			}
		default:
			t.Fatalf("%s: no envelope delivered", name)
		}
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	defer h.Close()

	var droppedKind Kind
	h.OnDrop = func(k Kind) { droppedKind = k }

	sub := h.Subscribe(1)
	h.Publish(NewSample(session.Sample{IdleSeconds: 1}))
	h.Publish(NewSample(session.Sample{IdleSeconds: 2}))

	if got := h.Drops(); got != 1 {
		t.Fatalf("drops = %d, want 1", got)
	}
	if droppedKind != KindSample {
		t.Fatalf("dropped kind = %q, want %q", droppedKind, KindSample)
	}

	env := <-sub.Events()
	if env.Sample.IdleSeconds != 1 {
		t.Fatalf("delivered sample = %d, want the first one", env.Sample.IdleSeconds)
	}
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	h := NewHub()
	defer h.Close()
	h.Publish(NewIdleEvent(session.IdleEvent{IdleSeconds: 90}))
	// Nothing to assert beyond "did not block or panic".
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sub := h.Subscribe(1)
	sub.Close()
	sub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Fatal("events channel should be closed")
	}
	if got := h.Subscribers(); got != 0 {
		t.Fatalf("subscribers = %d, want 0", got)
	}

	// Publishing after the only subscriber left must not panic.
	h.Publish(NewSample(session.Sample{IdleSeconds: 5}))
}

func TestHubCloseClosesSubscribers(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(1)
	h.Close()

	if _, ok := <-sub.Events(); ok {
		t.Fatal("events channel should be closed after hub close")
	}
	// Close after hub close stays safe.
	sub.Close()
	// Subscribe after close returns a closed subscription.
	late := h.Subscribe(1)
	if _, ok := <-late.Events(); ok {
		t.Fatal("late subscription should be closed immediately")
	}
}

func TestEnvelopeConstructorsTagKind(t *testing.T) {
	ev := NewIdleEvent(session.IdleEvent{IdleSeconds: 61, Source: session.SourceLock})
	if ev.Kind != KindIdleEvent || ev.IdleEvent == nil || ev.Sample != nil {
		t.Fatalf("idle-event envelope malformed: %+v", ev)
	}
	sm := NewSample(session.Sample{IdleSeconds: 2})
	if sm.Kind != KindSample || sm.Sample == nil || sm.IdleEvent != nil {
		t.Fatalf("sample envelope malformed: %+v", sm)
	}
}
