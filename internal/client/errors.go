package client

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/travelplanner/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrUnavailable = errors.New("server unavailable")
	ErrNotLoggedIn = errors.New("not logged in")
)

// mapError turns a gRPC status back into the shared sentinel errors.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.AlreadyExists:
		return common.ErrEmailAlreadyExists
	case codes.Unauthenticated:
		switch st.Message() {
		case common.ErrInvalidCredentials.Error():
			return common.ErrInvalidCredentials
		case common.ErrInvalidProviderToken.Error():
			return common.ErrInvalidProviderToken
		case common.ErrRefreshTokenRevoked.Error():
			return common.ErrRefreshTokenRevoked
		}
		return common.ErrUnauthorized
	case codes.PermissionDenied:
		return common.ErrForbidden
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrValidation, st.Message())
	case codes.NotFound:
		return common.ErrorNotFound
	case codes.Unavailable:
		if st.Message() == common.ErrProviderUnavailable.Error() {
			return common.ErrProviderUnavailable
		}
		return ErrUnavailable
	default:
		return err
	}
}
