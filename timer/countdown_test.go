package timer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/howlingfantods/hairyrug/overlay"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Say(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) Broadcast(m overlay.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, "overlay:"+m.Command())
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func TestCountdownFiresInOrder(t *testing.T) {
	var order []string
	c := Countdown{
		Total:     20 * time.Millisecond,
		OnHalfway: func(context.Context) { order = append(order, "half") },
		OnExpire:  func(context.Context) { order = append(order, "expire") },
	}
	if !c.Run(context.Background()) {
		t.Fatal("expected expiry")
	}
	if len(order) != 2 || order[0] != "half" || order[1] != "expire" {
		t.Errorf("order = %v", order)
	}
}

func TestCountdownCancelledFiresNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var fired atomic.Int32
	c := Countdown{
		Total:     time.Hour,
		OnHalfway: func(context.Context) { fired.Add(1) },
		OnExpire:  func(context.Context) { fired.Add(1) },
	}
	done := make(chan bool)
	go func() { done <- c.Run(ctx) }()
	cancel()
	if <-done {
		t.Fatal("cancelled countdown reported expiry")
	}
	if fired.Load() != 0 {
		t.Errorf("callbacks fired = %d", fired.Load())
	}
}

func TestSlotReplacesPrevious(t *testing.T) {
	s := NewSlot("test")
	var oldFired, newFired atomic.Int32
	s.Start(context.Background(), "old", nil, Countdown{Total: time.Hour, OnExpire: func(context.Context) { oldFired.Add(1) }})
	s.Start(context.Background(), "new", nil, Countdown{Total: 10 * time.Millisecond, OnExpire: func(context.Context) { newFired.Add(1) }})
	s.Wait()
	if oldFired.Load() != 0 {
		t.Error("superseded countdown fired")
	}
	if newFired.Load() != 1 {
		t.Errorf("new countdown fired %d times", newFired.Load())
	}
	if _, ok := s.Current(); ok {
		t.Error("slot still active after expiry")
	}
}

func TestSlotCurrentAndClear(t *testing.T) {
	s := NewSlot("test")
	s.Start(context.Background(), "Two Sum", nil, Countdown{Total: time.Hour})
	deadline := time.Now().Add(time.Second)
	for {
		if a, ok := s.Current(); ok {
			if a.Label != "Two Sum" || a.Remaining() <= 0 {
				t.Errorf("active = %+v", a)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("slot never became active")
		}
		time.Sleep(time.Millisecond)
	}
	if !s.Clear() {
		t.Error("Clear reported nothing active")
	}
	if s.Clear() {
		t.Error("second Clear reported active")
	}
}

func TestPlainTimerMessages(t *testing.T) {
	rec := &recorder{}
	p := NewPlain(rec)
	p.Unit = 10 * time.Millisecond
	p.Start(context.Background(), "Two Sum", 2)
	p.Slot.Wait()
	want := []string{
		"⏰ 2-minute timer started for 'Two Sum'",
		"⏰ Halfway done with 'Two Sum'",
		"⏰ Time's up for 'Two Sum'",
	}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("msgs = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("msg[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLockInExpiry(t *testing.T) {
	rec := &recorder{}
	l := NewLockIn(rec, rec)
	l.Unit = 5 * time.Millisecond
	l.Start(context.Background(), "Two Sum", 2)
	l.Slot.Wait()
	got := rec.snapshot()
	want := []string{
		"🔒 LOCKED IN - 2 minutes for: Two Sum",
		"overlay:start",
		"overlay:stop",
		"⏰ Time's up for 'Two Sum' - LOCK-IN over!",
	}
	if len(got) != len(want) {
		t.Fatalf("msgs = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("msg[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLockInClearBroadcastsSingleStop(t *testing.T) {
	rec := &recorder{}
	l := NewLockIn(rec, rec)
	l.Unit = time.Hour
	l.Start(context.Background(), "Two Sum", 25)
	deadline := time.Now().Add(time.Second)
	for len(rec.snapshot()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("lock-in never started")
		}
		time.Sleep(time.Millisecond)
	}
	l.Clear()
	time.Sleep(20 * time.Millisecond)
	stops := 0
	for _, m := range rec.snapshot() {
		if m == "overlay:stop" {
			stops++
		}
		if m == "⏰ Time's up for 'Two Sum' - LOCK-IN over!" {
			t.Error("cancelled lock-in announced completion")
		}
	}
	if stops != 1 {
		t.Errorf("stop broadcasts = %d, want 1", stops)
	}
}

func TestLockInStartMessage(t *testing.T) {
	starts := make(chan overlay.Start, 1)
	b := broadcastFunc(func(m overlay.Message) {
		if s, ok := m.(overlay.Start); ok {
			starts <- s
		}
	})
	l := NewLockIn(&recorder{}, b)
	l.Unit = time.Hour
	l.Start(context.Background(), "Two Sum", 25)
	defer l.Slot.Clear()
	select {
	case got := <-starts:
		if got.Duration != 1500 || got.Label != "Two Sum" {
			t.Errorf("start = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no start broadcast")
	}
}

type broadcastFunc func(overlay.Message)

func (f broadcastFunc) Broadcast(m overlay.Message) { f(m) }

func TestSlotSkipsBeforeWhenCancelledEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSlot("test")
	var ran atomic.Bool
	s.Start(ctx, "x", func(context.Context) { ran.Store(true) }, Countdown{Total: time.Hour})
	s.Wait()
	if ran.Load() {
		t.Error("start announcement ran for a countdown cancelled before it began")
	}
	if _, ok := s.Current(); ok {
		t.Error("cancelled countdown left active")
	}
}

func TestLockInStartThenClearImmediately(t *testing.T) {
	for i := 0; i < 200; i++ {
		rec := &recorder{}
		l := NewLockIn(rec, rec)
		l.Unit = time.Hour
		l.Start(context.Background(), "Two Sum", 25)
		l.Clear()
		after := len(rec.snapshot())
		time.Sleep(time.Millisecond)

		got := rec.snapshot()
		if len(got) != after {
			t.Fatalf("iteration %d: messages after Clear returned: %v", i, got)
		}
		if len(got) == 0 || got[len(got)-1] != "overlay:stop" {
			t.Fatalf("iteration %d: msgs = %v, want trailing stop", i, got)
		}
		stops := 0
		for _, m := range got {
			if m == "overlay:stop" {
				stops++
			}
		}
		if stops != 1 {
			t.Fatalf("iteration %d: stop broadcasts = %d, want 1", i, stops)
		}
	}
}

func TestLockInQuickSupersedeAnnouncesOnce(t *testing.T) {
	rec := &recorder{}
	l := NewLockIn(rec, rec)
	l.Unit = time.Hour
	l.Start(context.Background(), "First", 10)
	l.Start(context.Background(), "Second", 20)
	deadline := time.Now().Add(time.Second)
	for {
		msgs := rec.snapshot()
		if n := len(msgs); n >= 2 && msgs[n-2] == "🔒 LOCKED IN - 20 minutes for: Second" && msgs[n-1] == "overlay:start" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("second lock-in never started: %v", rec.snapshot())
		}
		time.Sleep(time.Millisecond)
	}
	l.Clear()

	got := rec.snapshot()
	second := -1
	for i, m := range got {
		switch m {
		case "🔒 LOCKED IN - 20 minutes for: Second":
			if second >= 0 {
				t.Errorf("second lock-in announced twice: %v", got)
			}
			second = i
		case "🔒 LOCKED IN - 10 minutes for: First":
			if second >= 0 {
				t.Errorf("superseded lock-in announced after its replacement: %v", got)
			}
		}
	}
	if second < 0 {
		t.Fatalf("msgs = %v", got)
	}
}
