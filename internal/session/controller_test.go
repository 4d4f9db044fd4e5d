package session

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/kozaktomas/face-gate/internal/cadence"
	"github.com/kozaktomas/face-gate/internal/identity"
	"github.com/kozaktomas/face-gate/internal/liveness"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

const testDim = 3

type fakePersister struct {
	saved [][]identity.EnrolledIdentity
	err   error
}

func (f *fakePersister) Save(_ context.Context, items []identity.EnrolledIdentity) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, items)
	return nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "ID-" + strconv.Itoa(n)
	}
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *fakePersister) {
	t.Helper()
	p := &fakePersister{}
	dir := NewDirectory(identity.NewStore(testDim), p, 0.55, WithIDGenerator(sequentialIDs()))
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return start })}, opts...)
	return NewController(DefaultConfig(), dir, opts...), p
}

func happy(v float64, emb ...float32) *Observation {
	return &Observation{Embedding: emb, Expressions: map[string]float64{"happy": v}}
}

func TestController_ObserveBeforeStart(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.OnObservation(happy(0.1, 0, 0, 0))

	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if stateErr.Phase != PhaseIdle {
		t.Errorf("expected phase idle, got %s", stateErr.Phase)
	}
}

func TestController_LoginAccepted(t *testing.T) {
	c, _ := newTestController(t)
	if _, err := c.Directory().Enroll(context.Background(), "Alice", []float32{0.1, 0.2, 0.3}); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	var events []Event
	c.AddListener(func(e Event) { events = append(events, e) })

	if err := c.StartLogin(liveness.KindExpression); err != nil {
		t.Fatalf("start: %v", err)
	}

	signals := []float64{0.1, 0.2, 0.35}
	var last Result
	for i, s := range signals {
		res, err := c.OnObservation(happy(s, 0.1, 0.2, 0.3))
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if i < 2 && res.Verdict != nil {
			t.Fatalf("frame %d: unexpected verdict", i)
		}
		last = res
	}

	if last.Verdict == nil {
		t.Fatal("expected verdict on the satisfying frame")
	}
	if last.Verdict.Outcome != OutcomeAccepted {
		t.Errorf("expected accepted, got %s", last.Verdict.Outcome)
	}
	if last.Verdict.IdentityID != "ID-1" || last.Verdict.Name != "Alice" {
		t.Errorf("unexpected identity %q/%q", last.Verdict.IdentityID, last.Verdict.Name)
	}
	if last.Progress != 100 {
		t.Errorf("expected progress 100 after satisfaction, got %v", last.Progress)
	}
	if c.Phase() != PhaseCompleted {
		t.Errorf("expected completed phase, got %s", c.Phase())
	}

	var progress []float64
	verdicts := 0
	for _, e := range events {
		switch e.Type {
		case EventProgress:
			progress = append(progress, e.Progress)
		case EventVerdict:
			verdicts++
		}
	}
	want := []float64{10, 20, 35}
	if len(progress) != len(want) {
		t.Fatalf("expected %d progress events, got %v", len(want), progress)
	}
	for i := range want {
		if math.Abs(progress[i]-want[i]) > 1e-9 {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], want[i])
		}
	}
	if verdicts != 1 {
		t.Errorf("expected exactly one verdict event, got %d", verdicts)
	}
}

func TestController_MatchesSatisfyingFrame(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()
	if _, err := c.Directory().Enroll(ctx, "Alice", []float32{0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Directory().Enroll(ctx, "Bob", []float32{5, 5, 5}); err != nil {
		t.Fatal(err)
	}

	if err := c.StartLogin(liveness.KindExpression); err != nil {
		t.Fatal(err)
	}
	// Alice's face while smiling slightly, Bob's face on the satisfying frame.
	if _, err := c.OnObservation(happy(0.1, 0, 0, 0)); err != nil {
		t.Fatal(err)
	}
	res, err := c.OnObservation(happy(0.9, 5, 5, 5))
	if err != nil {
		t.Fatal(err)
	}

	if res.Verdict == nil || res.Verdict.Name != "Bob" {
		t.Errorf("expected verdict for Bob, got %+v", res.Verdict)
	}
}

func TestController_LoginRejected(t *testing.T) {
	c, _ := newTestController(t)
	if _, err := c.Directory().Enroll(context.Background(), "Alice", []float32{0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := c.StartLogin(liveness.KindExpression); err != nil {
		t.Fatal(err)
	}

	res, err := c.OnObservation(happy(0.8, 1, 1, 1))
	if err != nil {
		t.Fatal(err)
	}

	if res.Verdict == nil {
		t.Fatal("expected verdict")
	}
	if res.Verdict.Outcome != OutcomeRejected {
		t.Errorf("expected rejected, got %s", res.Verdict.Outcome)
	}
	if res.Verdict.Err() != nil {
		t.Errorf("rejection must not be an error, got %v", res.Verdict.Err())
	}
	if math.Abs(res.Verdict.Distance-math.Sqrt(3)) > 1e-6 {
		t.Errorf("expected distance sqrt(3), got %v", res.Verdict.Distance)
	}
}

func TestController_EmptyStoreIsNotRejection(t *testing.T) {
	for _, kind := range []liveness.Kind{liveness.KindExpression, liveness.KindGeometric} {
		t.Run(string(kind), func(t *testing.T) {
			c, _ := newTestController(t)
			if err := c.StartLogin(kind); err != nil {
				t.Fatal(err)
			}

			obs := &Observation{
				Embedding:   []float32{0.1, 0.2, 0.3},
				Expressions: map[string]float64{"happy": 0.9},
				Landmarks:   openMouth(),
			}
			res, err := c.OnObservation(obs)
			if err != nil {
				t.Fatal(err)
			}

			if res.Verdict == nil {
				t.Fatal("expected verdict")
			}
			if res.Verdict.Outcome != OutcomeNoEnrolled {
				t.Errorf("expected %s, got %s", OutcomeNoEnrolled, res.Verdict.Outcome)
			}
			if !math.IsInf(res.Verdict.Distance, 1) {
				t.Errorf("expected +Inf distance, got %v", res.Verdict.Distance)
			}
			var noEnrolled *NoEnrolledIdentitiesError
			if !errors.As(res.Verdict.Err(), &noEnrolled) {
				t.Errorf("expected NoEnrolledIdentitiesError, got %v", res.Verdict.Err())
			}
		})
	}
}

// openMouth returns 68 landmarks with a mouth-openness ratio of 0.5.
func openMouth() []liveness.Point {
	pts := make([]liveness.Point, liveness.LandmarkCount68)
	pts[liveness.LandmarkMouthLeft] = liveness.Point{X: 0, Y: 0}
	pts[liveness.LandmarkMouthRight] = liveness.Point{X: 10, Y: 0}
	pts[liveness.LandmarkInnerUpperLip] = liveness.Point{X: 5, Y: -2.5}
	pts[liveness.LandmarkInnerLowerLip] = liveness.Point{X: 5, Y: 2.5}
	return pts
}

func TestController_CancelThenObserve(t *testing.T) {
	c, _ := newTestController(t)
	if err := c.StartLogin(liveness.KindExpression); err != nil {
		t.Fatal(err)
	}
	if _, err := c.OnObservation(happy(0.1, 0, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if c.Status().Challenge.State != liveness.StateInProgress {
		t.Fatalf("expected in_progress, got %s", c.Status().Challenge.State)
	}

	c.Cancel()
	c.Cancel()

	_, err := c.OnObservation(happy(0.9, 0, 0, 0))
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if stateErr.Phase != PhaseCancelled {
		t.Errorf("expected cancelled phase, got %s", stateErr.Phase)
	}
	if c.Verdict() != nil {
		t.Error("cancelled session must not carry a verdict")
	}
	if got := c.Status().Challenge.State; got != liveness.StateAbandoned {
		t.Errorf("expected abandoned challenge, got %s", got)
	}
}

func TestController_ObserveAfterVerdictRequiresRestart(t *testing.T) {
	c, _ := newTestController(t)
	if err := c.StartLogin(liveness.KindExpression); err != nil {
		t.Fatal(err)
	}
	if _, err := c.OnObservation(happy(0.9, 0, 0, 0)); err != nil {
		t.Fatal(err)
	}

	_, err := c.OnObservation(happy(0.9, 0, 0, 0))
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}

	if err := c.Start(ModeLogin); err != nil {
		t.Fatal(err)
	}
	if c.Verdict() != nil {
		t.Error("restart must clear the previous verdict")
	}
	if _, err := c.OnObservation(happy(0.1, 0, 0, 0)); err != nil {
		t.Errorf("observation after restart failed: %v", err)
	}
}

func TestController_NoFaceFrameKeepsProgress(t *testing.T) {
	c, _ := newTestController(t)
	if err := c.StartLogin(liveness.KindExpression); err != nil {
		t.Fatal(err)
	}
	if _, err := c.OnObservation(happy(0.2, 0, 0, 0)); err != nil {
		t.Fatal(err)
	}

	res, err := c.OnObservation(&Observation{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Face {
		t.Error("expected no face")
	}
	if res.Progress != 20 {
		t.Errorf("expected progress to stay at 20, got %v", res.Progress)
	}
}

func TestController_WrongDimensionRejectedFrame(t *testing.T) {
	c, _ := newTestController(t)
	if err := c.StartLogin(liveness.KindExpression); err != nil {
		t.Fatal(err)
	}

	_, err := c.OnObservation(happy(0.9, 1, 2))
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if c.Phase() != PhaseActive {
		t.Errorf("session should stay active, got %s", c.Phase())
	}
}

func TestController_StartPicksKindFromRand(t *testing.T) {
	seen := map[liveness.Kind]bool{}
	c, _ := newTestController(t, WithRand(rand.New(rand.NewPCG(1, 2))))
	for range 50 {
		if err := c.Start(ModeLogin); err != nil {
			t.Fatal(err)
		}
		seen[c.Status().Challenge.Kind] = true
	}
	if !seen[liveness.KindExpression] || !seen[liveness.KindGeometric] {
		t.Errorf("expected both kinds over 50 sessions, got %v", seen)
	}
}

func TestController_StartValidation(t *testing.T) {
	c, _ := newTestController(t)

	var valErr *ValidationError
	if err := c.Start(Mode("audit")); !errors.As(err, &valErr) {
		t.Errorf("expected ValidationError for unknown mode, got %v", err)
	}
	if err := c.StartLogin(liveness.Kind("blink")); !errors.As(err, &valErr) {
		t.Errorf("expected ValidationError for unknown kind, got %v", err)
	}
	if c.Phase() != PhaseIdle {
		t.Errorf("failed start must leave controller idle, got %s", c.Phase())
	}
}

func TestController_RegisterFlow(t *testing.T) {
	c, p := newTestController(t)
	ctx := context.Background()

	if err := c.Start(ModeRegister); err != nil {
		t.Fatal(err)
	}

	var noFace *NoFaceError
	if _, err := c.Enroll(ctx, "Bob"); !errors.As(err, &noFace) {
		t.Fatalf("expected NoFaceError before any face, got %v", err)
	}

	if _, err := c.OnObservation(&Observation{Embedding: []float32{1, 1, 1}}); err != nil {
		t.Fatal(err)
	}
	// A later frame without a face replaces the last face seen.
	if _, err := c.OnObservation(&Observation{}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Enroll(ctx, "Bob"); !errors.As(err, &noFace) {
		t.Fatalf("expected NoFaceError after a faceless frame, got %v", err)
	}
	if len(p.saved) != 0 {
		t.Fatalf("expected no save, got %v", p.saved)
	}

	if _, err := c.OnObservation(&Observation{Embedding: []float32{1, 1, 1}}); err != nil {
		t.Fatal(err)
	}

	var valErr *ValidationError
	if _, err := c.Enroll(ctx, "   "); !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError for blank name, got %v", err)
	}

	bob, err := c.Enroll(ctx, "  Bob ")
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if bob.Name != "Bob" || bob.ID != "ID-1" {
		t.Errorf("unexpected identity %+v", bob)
	}
	if len(p.saved) != 1 || len(p.saved[0]) != 1 {
		t.Errorf("expected one wholesale save with one identity, got %v", p.saved)
	}

	// The face was consumed by the enrollment.
	if _, err := c.Enroll(ctx, "Bob again"); !errors.As(err, &noFace) {
		t.Errorf("expected NoFaceError after enrollment, got %v", err)
	}

	// Scenario: a near-identical face under another name is a duplicate of Bob.
	if _, err := c.OnObservation(&Observation{Embedding: []float32{1.1, 1, 1}}); err != nil {
		t.Fatal(err)
	}
	_, err = c.Enroll(ctx, "Bob2")
	var dup *DuplicateIdentityError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateIdentityError, got %v", err)
	}
	if dup.Name != "Bob" {
		t.Errorf("expected duplicate to reference Bob, got %q", dup.Name)
	}
	if got := c.Directory().Store().Len(); got != 1 {
		t.Errorf("expected 1 identity after duplicate, got %d", got)
	}
}

func TestController_EnrollOutsideRegister(t *testing.T) {
	c, _ := newTestController(t)
	if err := c.Start(ModeLogin); err != nil {
		t.Fatal(err)
	}

	_, err := c.Enroll(context.Background(), "Alice")
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if stateErr.Mode != ModeLogin {
		t.Errorf("expected login mode in error, got %s", stateErr.Mode)
	}
}

func TestController_Identify(t *testing.T) {
	c, _ := newTestController(t)

	v, err := c.Identify(&Observation{Embedding: []float32{0, 0, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if v.Outcome != OutcomeNoEnrolled {
		t.Errorf("expected %s on empty store, got %s", OutcomeNoEnrolled, v.Outcome)
	}

	if _, err := c.Directory().Enroll(context.Background(), "Alice", []float32{0, 0, 0}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		probe   []float32
		outcome Outcome
	}{
		{"within login threshold", []float32{0.5, 0, 0}, OutcomeAccepted},
		{"at login threshold", []float32{0.55, 0, 0}, OutcomeRejected},
		{"far away", []float32{3, 3, 3}, OutcomeRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := c.Identify(&Observation{Embedding: tt.probe})
			if err != nil {
				t.Fatal(err)
			}
			if v.Outcome != tt.outcome {
				t.Errorf("expected %s, got %s (distance %v)", tt.outcome, v.Outcome, v.Distance)
			}
		})
	}

	var noFace *NoFaceError
	if _, err := c.Identify(&Observation{}); !errors.As(err, &noFace) {
		t.Errorf("expected NoFaceError, got %v", err)
	}
	if c.Phase() != PhaseIdle {
		t.Errorf("identify must not change the session, got %s", c.Phase())
	}
}

func TestController_LivenessThresholdIsStricter(t *testing.T) {
	c, _ := newTestController(t)
	if _, err := c.Directory().Enroll(context.Background(), "Alice", []float32{0, 0, 0}); err != nil {
		t.Fatal(err)
	}

	// 0.5 passes the plain login threshold but not the liveness-gated one.
	v, err := c.Identify(&Observation{Embedding: []float32{0.5, 0, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if v.Outcome != OutcomeAccepted {
		t.Errorf("expected plain identify to accept, got %s", v.Outcome)
	}

	if err := c.StartLogin(liveness.KindExpression); err != nil {
		t.Fatal(err)
	}
	res, err := c.OnObservation(happy(0.9, 0.5, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if res.Verdict.Outcome != OutcomeRejected {
		t.Errorf("expected liveness-gated login to reject, got %s", res.Verdict.Outcome)
	}
}

func TestController_ThrottleDropsFrames(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	c, _ := newTestController(t,
		WithClock(func() time.Time { return now }),
		WithThrottle(cadence.NewPolicy(100*time.Millisecond)),
	)
	if err := c.StartLogin(liveness.KindExpression); err != nil {
		t.Fatal(err)
	}

	res, err := c.OnObservation(happy(0.1, 0, 0, 0))
	if err != nil || res.Dropped {
		t.Fatalf("first frame should be processed, dropped=%v err=%v", res.Dropped, err)
	}

	now = now.Add(30 * time.Millisecond)
	res, err = c.OnObservation(happy(0.9, 0, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Dropped {
		t.Fatal("frame inside the interval should be dropped")
	}
	if c.Phase() != PhaseActive {
		t.Errorf("dropped frame must not complete the session, got %s", c.Phase())
	}

	now = now.Add(100 * time.Millisecond)
	res, err = c.OnObservation(happy(0.9, 0, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if res.Dropped || res.Verdict == nil {
		t.Errorf("expected processed frame with verdict, got %+v", res)
	}
}

func TestController_LogsFrameStats(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	c, _ := newTestController(t,
		WithClock(func() time.Time { return now }),
		WithThrottle(cadence.NewPolicy(100*time.Millisecond)),
		WithLogger(logger),
	)

	if err := c.StartLogin(liveness.KindExpression); err != nil {
		t.Fatal(err)
	}
	for _, v := range []float64{0.1, 0.2, 0.25} {
		if _, err := c.OnObservation(happy(v, 0, 0, 0)); err != nil {
			t.Fatal(err)
		}
		now = now.Add(60 * time.Millisecond)
	}
	now = now.Add(100 * time.Millisecond)
	if res, err := c.OnObservation(happy(0.9, 0, 0, 0)); err != nil || res.Verdict == nil {
		t.Fatalf("expected verdict, got %+v, err %v", res, err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Message != "identification finished" {
		t.Fatalf("unexpected last log entry %+v", entry)
	}
	if entry.Data["frames_accepted"] != 3 || entry.Data["frames_dropped"] != 1 {
		t.Errorf("frame stats = %v/%v, want 3/1", entry.Data["frames_accepted"], entry.Data["frames_dropped"])
	}

	if err := c.Start(ModeRegister); err != nil {
		t.Fatal(err)
	}
	c.Cancel()
	entry = hook.LastEntry()
	if entry.Message != "session cancelled" || entry.Data["frames_dropped"] != 0 {
		t.Errorf("unexpected cancel entry %+v", entry.Data)
	}
}

func TestController_CancelEvent(t *testing.T) {
	c, _ := newTestController(t)
	var types []EventType
	c.AddListener(func(e Event) { types = append(types, e.Type) })

	if err := c.Start(ModeRegister); err != nil {
		t.Fatal(err)
	}
	c.Cancel()
	c.Cancel()

	want := []EventType{EventStarted, EventCancelled}
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}
