package models

import (
	"errors"
	"strings"
)

// Status is the lifecycle state of a dispatch request.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRequesting Status = "requesting"
	StatusConfirmed  Status = "confirmed"
	StatusEnRoute    Status = "en_route"
)

var ErrInvalidStatus = errors.New("invalid request status")

// ParseStatus normalizes (lowercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

func (status Status) Valid() bool {
	switch status {
	case StatusIdle, StatusRequesting, StatusConfirmed, StatusEnRoute:
		return true
	default:
		return false
	}
}

func (status Status) String() string {
	return string(status)
}

// Label is the status line shown to the user.
func (status Status) Label() string {
	switch status {
	case StatusRequesting:
		return "Requesting ambulance..."
	case StatusConfirmed:
		return "Ambulance confirmed"
	case StatusEnRoute:
		return "Ambulance on the way"
	default:
		return "Book an ambulance"
	}
}

// CanAdvanceTo reports whether next is the single forward step from status,
// or a reset to idle.
func (status Status) CanAdvanceTo(next Status) bool {
	if !status.Valid() || !next.Valid() {
		return false
	}
	if next == StatusIdle {
		return true
	}
	switch status {
	case StatusIdle:
		return next == StatusRequesting
	case StatusRequesting:
		return next == StatusConfirmed
	case StatusConfirmed:
		return next == StatusEnRoute
	default:
		return false
	}
}
