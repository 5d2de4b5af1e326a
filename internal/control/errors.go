package control

import (
	"errors"
	"net/http"

	"droneswarm/internal/command"
	"droneswarm/internal/executor"
	"droneswarm/internal/fleet"
)

// statusFor maps a rejection to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, command.ErrUnknownCommand), errors.Is(err, command.ErrBadArgs):
		return http.StatusBadRequest
	case errors.Is(err, fleet.ErrUnknownVehicle):
		return http.StatusNotFound
	case errors.Is(err, executor.ErrQueueClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
