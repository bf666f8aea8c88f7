package handler

import (
	"context"
	"errors"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/gofiber/fiber/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func grpcCode(err error) codes.Code {
	var batch *inventory.BatchError
	switch {
	case errors.As(err, &batch):
		return codes.OK
	case errors.Is(err, inventory.ErrNotFound), errors.Is(err, inventory.ErrReservationNotFound):
		return codes.NotFound
	case errors.Is(err, inventory.ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(err, inventory.ErrInvalidState):
		return codes.FailedPrecondition
	case errors.Is(err, inventory.ErrInsufficientStock):
		return codes.ResourceExhausted
	case errors.Is(err, inventory.ErrConcurrentModification), errors.Is(err, inventory.ErrSyncInProgress):
		return codes.Aborted
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return codes.Internal
}

// toStatus converts a use-case error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(grpcCode(err), err.Error())
}

func httpStatus(err error) int {
	switch grpcCode(err) {
	case codes.NotFound:
		return fiber.StatusNotFound
	case codes.InvalidArgument:
		return fiber.StatusBadRequest
	case codes.FailedPrecondition, codes.ResourceExhausted:
		return fiber.StatusUnprocessableEntity
	case codes.Aborted:
		return fiber.StatusConflict
	case codes.DeadlineExceeded:
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusInternalServerError
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, inventory.ErrReservationNotFound):
		return "RESERVATION_NOT_FOUND"
	case errors.Is(err, inventory.ErrInvalidInput):
		return "BAD_REQUEST"
	case errors.Is(err, inventory.ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, inventory.ErrConcurrentModification):
		return "CONCURRENT_MODIFICATION"
	case errors.Is(err, inventory.ErrSyncInProgress):
		return "SYNC_IN_PROGRESS"
	}
	return "INTERNAL_SERVER_ERROR"
}
