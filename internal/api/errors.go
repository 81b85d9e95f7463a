package api

import (
	"context"
	"errors"

	"github.com/matheus3301/chatsync/internal/auth"
	"github.com/matheus3301/chatsync/internal/conn"
	"github.com/matheus3301/chatsync/internal/hub"
	"github.com/matheus3301/chatsync/internal/pull"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps hub and pull errors onto gRPC codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case errors.Is(err, hub.ErrUnknownConversation),
		errors.Is(err, hub.ErrUnknownMessage),
		errors.Is(err, hub.ErrWindowNotOpen),
		errors.Is(err, hub.ErrUnknownPlaceholder),
		errors.Is(err, pull.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, hub.ErrNotFailed),
		errors.Is(err, hub.ErrNotConfirmed),
		errors.Is(err, hub.ErrNotReady),
		errors.Is(err, conn.ErrAlreadyConnected):
		code = codes.FailedPrecondition
	case errors.Is(err, hub.ErrEmptyMessage):
		code = codes.InvalidArgument
	case errors.Is(err, hub.ErrNotOwner):
		code = codes.PermissionDenied
	case errors.Is(err, auth.ErrUnauthenticated):
		code = codes.Unauthenticated
	case errors.Is(err, hub.ErrStopped),
		errors.Is(err, conn.ErrClosed):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return grpcstatus.Error(code, err.Error())
}
