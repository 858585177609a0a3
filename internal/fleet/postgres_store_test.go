package fleet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_ListVehicles(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM vehicles").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "vehicle_type", "vehicle_number", "seats"}).
			AddRow(int64(1), "HiAce", "Van", "D 1234", 12).
			AddRow(int64(2), "Camry", "", "", 4))

	got, err := NewPostgresStoreWithQuerier(mock).ListVehicles(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Vehicle{ID: 1, Name: "HiAce", Type: "Van", Number: "D 1234", Seats: 12}, got[0])
	assert.Equal(t, "Camry", got[1].Label())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDriversWrapsError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM drivers").WithArgs(int64(3)).WillReturnError(errors.New("down"))

	_, err = NewPostgresStoreWithQuerier(mock).ListDrivers(context.Background(), 3)
	if err == nil {
		t.Fatalf("expected error")
	}
	assert.Contains(t, err.Error(), "fleet: query drivers")
}

func TestPostgresStore_BookedResourcesSkipsNullColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM booking_assignments").
		WithArgs(int64(3), "2026-02-10", int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"vehicle_id", "driver_id"}).
			AddRow(int64(1), int64(5)).
			AddRow(int64(2), int64(0)))

	vehicles, drivers, err := NewPostgresStoreWithQuerier(mock).BookedResources(context.Background(), 3, date, 9)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, vehicles)
	assert.Equal(t, []int64{5}, drivers)
	assert.NoError(t, mock.ExpectationsWereMet())
}
