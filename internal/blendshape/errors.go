package blendshape

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Failure kinds.
var (
	ErrTopologyMismatch          = errors.New("topology mismatch")
	ErrControlPointCountMismatch = errors.New("control point count mismatch")
	ErrMissingNode               = errors.New("missing node")
	ErrCancelled                 = errors.New("cancelled")
	ErrChannelNotFound           = errors.New("channel not found")
	ErrInvalidTolerances         = errors.New("tolerances must be non-negative and ascending")
)

// FailureKind classifies a per-mesh or per-channel failure.
type FailureKind int

const (
	KindOther FailureKind = iota
	KindTopologyMismatch
	KindControlPointCountMismatch
	KindMissingNode
	KindMissingChannel
	KindCancelled
)

var kindNames = map[FailureKind]string{
	KindOther:                     "error",
	KindTopologyMismatch:          "topology mismatch",
	KindControlPointCountMismatch: "control point count mismatch",
	KindMissingNode:               "missing node",
	KindMissingChannel:            "missing channel",
	KindCancelled:                 "cancelled",
}

func (k FailureKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

// Failure records one isolated failure. Channel is empty for mesh failures.
type Failure struct {
	Kind    FailureKind
	Mesh    string
	Channel string
	Err     error
}

func (f *Failure) Error() string {
	if f.Channel != "" {
		return fmt.Sprintf("%s/%s: %s: %v", f.Mesh, f.Channel, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s: %s: %v", f.Mesh, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func newFailure(mesh, channel string, err error) *Failure {
	return &Failure{Kind: kindOf(err), Mesh: mesh, Channel: channel, Err: err}
}

func kindOf(err error) FailureKind {
	switch {
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrTopologyMismatch):
		return KindTopologyMismatch
	case errors.Is(err, ErrControlPointCountMismatch):
		return KindControlPointCountMismatch
	case errors.Is(err, ErrMissingNode):
		return KindMissingNode
	case errors.Is(err, ErrChannelNotFound):
		return KindMissingChannel
	default:
		return KindOther
	}
}

// checkpoint returns ErrCancelled once ctx is done.
func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(ErrCancelled, err.Error())
	}
	return nil
}

// asCancelled maps context errors returned by collaborators to ErrCancelled.
func asCancelled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(ErrCancelled, err.Error())
	}
	return err
}
