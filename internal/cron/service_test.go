package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/eventreg-backend/pkg/logger"
)

type fakeLock struct {
	acquired bool
	releases int
	err      error
	ttl      time.Duration
}

func (f *fakeLock) TTL() time.Duration { return f.ttl }

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	service := newTestService(t, lock, failure, success)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if failure.runs != 1 || success.runs != 1 {
		t.Fatalf("expected both jobs to run once, got fail=%d success=%d", failure.runs, success.runs)
	}
	if lock.acquired || lock.releases != 1 {
		t.Fatalf("expected lock released once, acquired=%v releases=%d", lock.acquired, lock.releases)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	lock := &fakeLock{acquired: true}
	service := newTestService(t, lock, job)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran while another instance held the lock")
	}
	if lock.releases != 0 {
		t.Fatalf("released a lock this instance never acquired")
	}
}

func TestRunOnceSurfacesLockErrors(t *testing.T) {
	job := &testJob{name: "job"}
	service := newTestService(t, &fakeLock{err: errors.New("redis down")}, job)

	if err := service.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected lock error")
	}
	if job.runs != 0 {
		t.Fatalf("job ran without the lock")
	}
}

func TestRunOnceStopsOnCanceledContext(t *testing.T) {
	job := &testJob{name: "job"}
	lock := &fakeLock{}
	service := newTestService(t, lock, job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran after cancellation")
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock release after cancellation")
	}
}

type blockingJob struct {
	name     string
	deadline time.Time
	bounded  bool
}

func (b *blockingJob) Name() string { return b.name }

func (b *blockingJob) Run(ctx context.Context) error {
	b.deadline, b.bounded = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func TestRunOnceBoundsRunByLockTTL(t *testing.T) {
	slow := &blockingJob{name: "slow"}
	next := &testJob{name: "next"}
	lock := &fakeLock{ttl: 50 * time.Millisecond}
	service := newTestService(t, lock, slow, next)

	started := time.Now()
	err := service.RunOnce(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !slow.bounded || slow.deadline.After(started.Add(lock.ttl)) {
		t.Fatalf("job deadline %v not within lock ttl from %v", slow.deadline, started)
	}
	if next.runs != 0 {
		t.Fatalf("job started after the lock ttl elapsed")
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock release after timeout, got %d", lock.releases)
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	if _, err := NewRegistry(&testJob{name: "a"}, &testJob{name: "a"}); err == nil {
		t.Fatalf("expected duplicate job name error")
	}
	registry, err := NewRegistry(&testJob{name: "a"}, nil, &testJob{name: "b"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0].Name() != "a" || jobs[1].Name() != "b" {
		t.Fatalf("unexpected job order %v", jobs)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	registry, _ := NewRegistry()
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	cases := map[string]ServiceParams{
		"logger":   {Registry: registry, Lock: &fakeLock{}},
		"lock":     {Logger: logg, Registry: registry},
		"registry": {Logger: logg, Lock: &fakeLock{}},
	}
	for name, params := range cases {
		if _, err := NewService(params); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
