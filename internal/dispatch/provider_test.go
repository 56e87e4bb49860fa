package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/emergency-dispatch/internal/models"
)

func TestMockProvider_FixedAssignment(t *testing.T) {
	a, err := MockProvider{}.Assign(context.Background(), models.EmergencyRequest{ID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "HR-26-AB-1234", a.Info.VehicleID)
	assert.Equal(t, "Rajesh Kumar", a.Info.OperatorName)
	assert.Equal(t, 4.8, a.Info.OperatorRating)
	assert.Nil(t, a.VehicleLoc)
}
