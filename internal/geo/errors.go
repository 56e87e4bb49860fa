package geo

import "errors"

var ErrUnknownVehicle = errors.New("unknown vehicle")
