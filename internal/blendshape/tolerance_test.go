package blendshape

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/Faultbox/blendshare/pkg/vecmath"
)

func TestValidateTolerances(t *testing.T) {
	tests := []struct {
		name    string
		ladder  []float64
		wantErr bool
	}{
		{"default", DefaultTolerances, false},
		{"single zero", []float64{0}, false},
		{"empty", []float64{}, true},
		{"negative", []float64{-1, 0}, true},
		{"descending", []float64{1e-3, 1e-4}, true},
		{"duplicate", []float64{0, 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTolerances(tt.ladder)
			if (err != nil) != tt.wantErr {
				t.Errorf("got error=%v, wantErr=%v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTolerances) {
				t.Errorf("expected ErrInvalidTolerances, got %v", err)
			}
		})
	}
}

// TestToleranceMonotonicity builds a welding group whose deltas are eps
// apart. The ladder must fail below eps and stop at the first tolerance
// that covers it.
func TestToleranceMonotonicity(t *testing.T) {
	const eps = 0.0005
	ladder := []float64{0, 1e-4, 1e-3, 1e-2}

	deltas := []mgl64.Vec4{{0, 0, 1, 0}, {0, 0, 1 + eps, 0}}
	groups := [][]int{{0, 1}}

	ctrl, err := NewController(ladder, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	var tried []float64
	esc, err := ctrl.Run(context.Background(), func(ctx context.Context, tol float64) (bool, error) {
		tried = append(tried, tol)
		work := append([]mgl64.Vec4(nil), deltas...)
		if _, err := MergeDeltas(ctx, work, groups, tol, Parallelism{}); err != nil {
			return false, err
		}
		return vecmath.KeyOf4(work[0]) == vecmath.KeyOf4(work[1]), nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !esc.OK {
		t.Fatal("expected the ladder to succeed")
	}
	if esc.Tolerance != 1e-3 {
		t.Errorf("expected tolerance 1e-3, got %g", esc.Tolerance)
	}
	if len(tried) != 3 || esc.Attempts != 3 {
		t.Errorf("expected 3 attempts stopping at the first success, got %v", tried)
	}
}

func TestControllerExhausted(t *testing.T) {
	ctrl, err := NewController([]float64{0, 1}, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	esc, err := ctrl.Run(context.Background(), func(context.Context, float64) (bool, error) {
		return false, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if esc.OK || esc.Attempts != 2 {
		t.Errorf("expected 2 failed attempts, got %+v", esc)
	}
}

func TestControllerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctrl, _ := NewController(nil, nil)

	calls := 0
	_, err := ctrl.Run(ctx, func(context.Context, float64) (bool, error) {
		calls++
		cancel()
		return false, nil
	})
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", calls)
	}
}

func TestControllerAttemptError(t *testing.T) {
	ctrl, _ := NewController(nil, nil)
	boom := errors.New("boom")

	_, err := ctrl.Run(context.Background(), func(context.Context, float64) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}

	_, err = ctrl.Run(context.Background(), func(context.Context, float64) (bool, error) {
		return false, context.Canceled
	})
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected context errors to map to ErrCancelled, got %v", err)
	}
}
