package host

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/livedemo/internal/catalog"
	"github.com/signalsfoundry/livedemo/internal/engine"
)

var (
	// ErrMissingKind rejects a subscription that names no widget.
	ErrMissingKind = errors.New("widget kind is required")
	// ErrHubClosed is returned once the hub has shut down.
	ErrHubClosed = errors.New("hub closed")
)

// ToStatusError maps hub and engine errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, catalog.ErrUnknownWidget):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrMissingKind),
		errors.Is(err, engine.ErrInvalidScenario):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, ErrHubClosed),
		errors.Is(err, engine.ErrUnmounted),
		errors.Is(err, engine.ErrAlreadyMounted),
		errors.Is(err, engine.ErrNotMounted):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
