package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeLock struct {
	acquired bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.acquired = false; return nil }

type testJob struct {
	name  string
	err   error
	panic bool
	runs  int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	if t.panic {
		panic("job exploded")
	}
	return t.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	registry, err := NewRegistry(success, failure)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	reg := prometheus.NewRegistry()
	jobMetrics := metrics.NewCronJobMetrics(reg)
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     &fakeLock{},
		Metrics:  jobMetrics,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	err = service.RunOnce(context.Background())
	if err == nil || !errors.Is(err, failure.err) {
		t.Fatalf("expected the failing job's error, got %v", err)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected one run each, got success=%d fail=%d", success.runs, failure.runs)
	}
	if count := testutil.CollectAndCount(reg); count == 0 {
		t.Fatal("expected cron metrics to be collected")
	}
}

func TestRunOnceSkipsWhenLocked(t *testing.T) {
	job := &testJob{name: "only"}
	registry, _ := NewRegistry(job)
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: &fakeLock{acquired: true}})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatal("job must not run while another worker holds the lock")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "tick"}
	registry, _ := NewRegistry(job)
	service, _ := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: &fakeLock{}, Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
	if job.runs != 1 {
		t.Fatalf("expected the immediate cycle, got %d runs", job.runs)
	}
}

func TestRetentionJobPassesWindow(t *testing.T) {
	var got time.Duration
	job, err := NewRetentionJob(RetentionJobParams{
		Name:      "waiter-call-retention",
		Logger:    testLogger(),
		Retention: 72 * time.Hour,
		Purge: func(_ context.Context, olderThan time.Duration) (int64, error) {
			got = olderThan
			return 4, nil
		},
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != 72*time.Hour {
		t.Fatalf("unexpected retention %s", got)
	}

	failing, _ := NewRetentionJob(RetentionJobParams{
		Name: "x", Logger: testLogger(), Retention: time.Hour,
		Purge: func(context.Context, time.Duration) (int64, error) { return 0, errors.New("db down") },
	})
	if err := failing.Run(context.Background()); err == nil {
		t.Fatal("expected purge error")
	}
	if _, err := NewRetentionJob(RetentionJobParams{Name: "x", Logger: testLogger(), Purge: func(context.Context, time.Duration) (int64, error) { return 0, nil }}); err == nil {
		t.Fatal("expected retention validation error")
	}
}

func TestRunOnceRecoversPanickingJob(t *testing.T) {
	boom := &testJob{name: "boom", panic: true}
	after := &testJob{name: "after"}
	registry, _ := NewRegistry(boom, after)
	lock := &fakeLock{}
	service, _ := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: lock})

	err := service.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected panic to surface as an error")
	}
	if after.runs != 1 {
		t.Fatal("jobs after a panic must still run")
	}
	if lock.acquired {
		t.Fatal("lock must be released after the cycle")
	}
}

type deadlineJob struct{ sawDeadline bool }

func (d *deadlineJob) Name() string { return "deadline" }

func (d *deadlineJob) Run(ctx context.Context) error {
	_, d.sawDeadline = ctx.Deadline()
	return nil
}

func TestRunOnceBoundsJobsWithTimeout(t *testing.T) {
	job := &deadlineJob{}
	registry, _ := NewRegistry(job)
	service, _ := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: &fakeLock{}, JobTimeout: time.Minute})
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !job.sawDeadline {
		t.Fatal("job context should carry the configured timeout")
	}
}
