package geo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/emergency-dispatch/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestIndex_NearbySkipsUnavailableAndSorts(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	require.NoError(t, idx.Upsert(ctx, models.Vehicle{ID: "far", Loc: models.Coord{Lat: 0.1, Lon: 0.1}, Available: true}))
	require.NoError(t, idx.Upsert(ctx, models.Vehicle{ID: "near", Loc: models.Coord{Lat: 0.01, Lon: 0.01}, Available: true}))
	require.NoError(t, idx.Upsert(ctx, models.Vehicle{ID: "busy", Loc: models.Coord{Lat: 0, Lon: 0}, Available: false}))

	got, err := idx.Nearby(ctx, 0, 0, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].ID)
	assert.Equal(t, "far", got[1].ID)

	got, _ = idx.Nearby(ctx, 0, 0, 1)
	assert.Len(t, got, 1)
}

func TestIndex_UpsertKeepsReservation(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	require.NoError(t, idx.Upsert(ctx, models.Vehicle{ID: "amb-1", Available: true}))
	require.NoError(t, idx.SetAvailable(ctx, "amb-1", false))

	// the moving ambulance still reports itself free
	require.NoError(t, idx.Upsert(ctx, models.Vehicle{ID: "amb-1", Loc: models.Coord{Lat: 0.02, Lon: 0.02}, OperatorName: "Rajesh Kumar", Available: true}))
	got, err := idx.Nearby(ctx, 0, 0, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, idx.SetAvailable(ctx, "amb-1", true))
	got, _ = idx.Nearby(ctx, 0, 0, 5)
	require.Len(t, got, 1)
	assert.Equal(t, 0.02, got[0].Loc.Lat)
	assert.Equal(t, "Rajesh Kumar", got[0].OperatorName)
}

func TestMetaFieldsOmitAvailability(t *testing.T) {
	f := MetaFields(models.Vehicle{ID: "amb-1", OperatorName: "Asha", Rating: 4.5, Available: true})
	assert.Equal(t, "Asha", f["operator_name"])
	assert.Equal(t, "4.5", f["rating"])
	assert.NotContains(t, f, "available")
}

func TestIndex_SetAvailable(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	_ = idx.Upsert(ctx, models.Vehicle{ID: "a", Available: true})

	require.NoError(t, idx.SetAvailable(ctx, "a", false))
	got, _ := idx.Nearby(ctx, 0, 0, 5)
	assert.Empty(t, got)

	assert.ErrorIs(t, idx.SetAvailable(ctx, "missing", true), ErrUnknownVehicle)
}

func TestVehicleFromMeta(t *testing.T) {
	v := vehicleFromMeta("amb-1", map[string]string{"operator_name": "Asha", "rating": "4.5", "available": "true"})
	assert.Equal(t, "Asha", v.OperatorName)
	assert.Equal(t, 4.5, v.Rating)
	assert.True(t, v.Available)
}
