package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddRejectsInvalidSpec(t *testing.T) {
	s := New()
	err := s.Add(Job{Name: "bad", Spec: "not a schedule", Run: func() error { return nil }})
	if err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestJobRuns(t *testing.T) {
	s := New()

	ran := make(chan struct{})
	var once sync.Once
	err := s.Add(Job{Name: "tick", Spec: "@every 10ms", Run: func() error {
		once.Do(func() { close(ran) })
		return nil
	}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job never ran")
	}
}

func TestFailingJobKeepsScheduler(t *testing.T) {
	s := New()

	var runs atomic.Int32
	err := s.Add(Job{Name: "flaky", Spec: "@every 10ms", Run: func() error {
		runs.Add(1)
		return errors.New("boom")
	}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	s.Start()
	defer s.Stop()

	deadline := time.After(5 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("job ran %d times, want at least 2", runs.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStopWaitsForRunningJob(t *testing.T) {
	s := New()

	started := make(chan struct{}, 1)
	var finished atomic.Bool
	err := s.Add(Job{Name: "slow", Spec: "@every 10ms", Run: func() error {
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
		return nil
	}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	s.Start()
	<-started
	s.Stop()

	if !finished.Load() {
		t.Error("stop returned before the running job finished")
	}
}
