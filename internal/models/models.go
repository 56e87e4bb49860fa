package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// EmergencyRequest is what a user submits from the emergency screen.
type EmergencyRequest struct {
	ID          string    `json:"id"`
	PatientName string    `json:"patient_name"`
	Contact     string    `json:"contact"`
	Pickup      Coord     `json:"pickup"`
	Kind        string    `json:"kind"` // cardiac, accident, ...
	CreatedAt   time.Time `json:"created_at"`
}

// Vehicle is an ambulance in the fleet index.
type Vehicle struct {
	ID              string    `json:"id"`
	Loc             Coord     `json:"loc"`
	OperatorName    string    `json:"operator_name"`
	OperatorContact string    `json:"operator_contact"`
	Rating          float64   `json:"rating"` // 0..5
	Available       bool      `json:"available"`
	Updated         time.Time `json:"updated"`
}

type DispatchInfo struct {
	VehicleID       string  `json:"vehicle_id"`
	OperatorName    string  `json:"operator_name"`
	OperatorContact string  `json:"operator_contact"`
	OperatorRating  float64 `json:"operator_rating"`
}

// Assignment is what a dispatch provider hands back on confirmation.
// VehicleLoc is optional; when set it seeds the initial ETA estimate.
type Assignment struct {
	Info       DispatchInfo
	VehicleLoc *Coord
}

// Snapshot is a read-only copy of a tracker's state. Dispatch and
// ETAMinutes are nil (JSON null) outside the states that define them.
type Snapshot struct {
	State      Status        `json:"state"`
	Dispatch   *DispatchInfo `json:"dispatch"`
	ETAMinutes *int          `json:"eta_minutes"`
	Err        string        `json:"error,omitempty"`
}

// StatusEvent is emitted for every tracker change.
type StatusEvent struct {
	RequestID string    `json:"request_id"`
	Seq       int64     `json:"seq"`
	Snapshot  Snapshot  `json:"snapshot"`
	At        time.Time `json:"at"`
}
