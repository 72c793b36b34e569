package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/sbdl/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, run *Run) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, run *Run) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, run)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if len(p.StepNames()) != 0 {
			t.Errorf("expected no steps, got %v", p.StepNames())
		}
		if p.logger == nil {
			t.Error("logger must default to slog.Default")
		}
	})
}

func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("runs steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(context.Context, *Run) error {
				order = append(order, name)
				return nil
			}}
		}

		p := New()
		p.AddSteps(record("first"), record("second"))
		p.AddStep(record("third"))

		run := NewRun("https://www.realmofdarkness.net/sb/koth-hank/")
		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"first", "second", "third"}
		if !slices.Equal(order, want) {
			t.Errorf("order = %v, want %v", order, want)
		}
		if !slices.Equal(run.PerformedSteps, want) {
			t.Errorf("PerformedSteps = %v", run.PerformedSteps)
		}
		if !slices.Equal(p.StepNames(), want) {
			t.Errorf("StepNames = %v", p.StepNames())
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("manifest missing")
		failing := &mockStep{name: "fail", doFunc: func(context.Context, *Run) error { return wantErr }}
		after := &mockStep{name: "after"}

		p := New()
		p.AddSteps(failing, after)

		run := NewRun("u")
		if err := p.Execute(context.Background(), run); !errors.Is(err, wantErr) {
			t.Errorf("expected %v, got %v", wantErr, err)
		}
		if after.callCount != 0 {
			t.Error("step after failure must not run")
		}
		if !errors.Is(run.Err, wantErr) {
			t.Errorf("run.Err = %v", run.Err)
		}
	})

	t.Run("releases directory lock", func(t *testing.T) {
		t.Parallel()

		locks := NewDirectoryLocks()
		dir := t.TempDir()
		lock := &mockStep{name: "lock", doFunc: func(_ context.Context, run *Run) error {
			run.unlock = locks.Lock(dir)
			return errors.New("manifest missing")
		}}

		p := New()
		p.AddStep(lock)
		run := NewRun("u")
		if err := p.Execute(context.Background(), run); err == nil {
			t.Fatal("expected error")
		}
		if run.unlock != nil {
			t.Error("unlock must be cleared after Execute")
		}

		done := make(chan struct{})
		go func() {
			locks.Lock(dir)()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("directory lock was not released")
		}
	})

	t.Run("cancelled context stops before next step", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		first := &mockStep{name: "first", doFunc: func(context.Context, *Run) error {
			cancel()
			return nil
		}}
		second := &mockStep{name: "second"}

		p := New()
		p.AddSteps(first, second)

		run := NewRun("u")
		if err := p.Execute(ctx, run); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if second.callCount != 0 {
			t.Error("second step must not run after cancel")
		}
	})
}

func TestRunResult(t *testing.T) {
	t.Parallel()

	run := NewRun("https://www.realmofdarkness.net/sb/koth-hank/")
	run.Soundboard = &model.Soundboard{DisplayName: "Hank Hill Soundboard", Manifest: []string{"a", "b", "c", "d"}}
	run.Skipped = 1
	run.Download = model.NewDownloadResult()
	run.Download.Artifacts = []model.Artifact{{Identifier: "a", Size: 10}, {Identifier: "b", Size: 5}}
	run.Download.Failed["c"] = "HTTP 404"
	run.Download.Bytes = 15

	res := run.Result()
	if res.DisplayName != "Hank Hill Soundboard" || res.ManifestSize != 4 {
		t.Errorf("result = %+v", res)
	}
	if res.Downloaded != 2 || res.Skipped != 1 || res.Bytes != 15 {
		t.Errorf("counts = %+v", res)
	}
	if !slices.Equal(res.Failed, []string{"c"}) {
		t.Errorf("Failed = %v", res.Failed)
	}
	if res.OK() {
		t.Error("result with failures must not be OK")
	}

	failed := NewRun("u")
	failed.Err = errors.New("fetch soundboard page: HTTP 500")
	if got := failed.Result(); got.Error == "" || got.OK() {
		t.Errorf("result = %+v", got)
	}
}
