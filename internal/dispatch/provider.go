package dispatch

import (
	"context"

	"github.com/example/emergency-dispatch/internal/models"
)

// MockProvider confirms every request with the same ambulance. It never
// fails and carries no vehicle position, so the tracker's default ETA
// applies.
type MockProvider struct{}

func MockDispatch() models.DispatchInfo {
	return models.DispatchInfo{
		VehicleID:       "HR-26-AB-1234",
		OperatorName:    "Rajesh Kumar",
		OperatorContact: "+91 98765 43210",
		OperatorRating:  4.8,
	}
}

func (MockProvider) Assign(ctx context.Context, req models.EmergencyRequest) (models.Assignment, error) {
	return models.Assignment{Info: MockDispatch()}, nil
}
