package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/storefront/internal/repositories"
)

// WrapError annotates Firestore errors with repository semantics. Context
// cancellations are passed through unchanged.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var repoErr *repositories.Error
	if errors.As(err, &repoErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return repositories.NewError(op, repositories.KindUnavailable, err)
	}

	return repositories.NewError(op, kindOf(status.Code(err)), err)
}

func kindOf(code codes.Code) repositories.ErrorKind {
	switch code {
	case codes.NotFound:
		return repositories.KindNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return repositories.KindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal:
		return repositories.KindUnavailable
	default:
		return repositories.KindUnknown
	}
}
