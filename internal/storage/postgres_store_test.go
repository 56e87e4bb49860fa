package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/emergency-dispatch/internal/models"
)

func TestPostgresStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	eta := 8
	mock.ExpectExec("INSERT INTO dispatch_events").
		WithArgs("r1", int64(3), "en_route", `{"vehicle_id":"HR-26-AB-1234","operator_name":"Rajesh Kumar","operator_contact":"+91 98765 43210","operator_rating":4.8}`, sqlmock.AnyArg(), "", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewPostgresStoreFromDB(db)
	err = s.Append(context.Background(), models.StatusEvent{
		RequestID: "r1",
		Seq:       3,
		At:        at,
		Snapshot: models.Snapshot{
			State:      models.StatusEnRoute,
			ETAMinutes: &eta,
			Dispatch: &models.DispatchInfo{
				VehicleID:       "HR-26-AB-1234",
				OperatorName:    "Rajesh Kumar",
				OperatorContact: "+91 98765 43210",
				OperatorRating:  4.8,
			},
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"seq", "state", "dispatch", "eta_minutes", "error", "created_at"}).
		AddRow(int64(1), "requesting", nil, nil, "", at).
		AddRow(int64(2), "confirmed", []byte(`{"vehicle_id":"HR-26-AB-1234"}`), nil, "", at).
		AddRow(int64(3), "en_route", []byte(`{"vehicle_id":"HR-26-AB-1234"}`), int64(8), "", at)
	mock.ExpectQuery("SELECT seq, state, dispatch, eta_minutes, error, created_at FROM dispatch_events").
		WithArgs("r1").
		WillReturnRows(rows)

	got, err := NewPostgresStoreFromDB(db).List(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Nil(t, got[0].Snapshot.Dispatch)
	assert.Equal(t, "HR-26-AB-1234", got[1].Snapshot.Dispatch.VehicleID)
	require.NotNil(t, got[2].Snapshot.ETAMinutes)
	assert.Equal(t, 8, *got[2].Snapshot.ETAMinutes)
	assert.NoError(t, mock.ExpectationsWereMet())
}
