package repository_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"reflect"
	"regexp"
	"testing"
	"time"

	"electronic_load/internal/models"
	"electronic_load/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
)

var stateCols = []string{"id", "run_state", "mode", "voltage", "current", "power", "charge_ah", "energy_wh", "elapsed_s", "faults", "updated_at"}

const selectStatePrefix = "SELECT id, run_state, mode, voltage, current, power, charge_ah, energy_wh, elapsed_s, faults, updated_at"

func TestStateSQLite_Save_SetsUTCWhenTimeZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	repo := repository.NewStateSQLite(db)

	state := models.LoadState{
		RunState:       models.Running,
		Mode:           models.ModeConstantCurrent,
		Voltage:        12.5,
		Current:        2,
		Power:          25,
		ChargeAh:       0.0011,
		EnergyWh:       0.0055,
		ElapsedSeconds: 2,
		Faults:         []string{"TIMEOUT"},
	}

	isUTCRecent := sqlmockArgumentFunc(func(v driver.Value) bool {
		tm, ok := v.(time.Time)
		if !ok || tm.Location() != time.UTC {
			return false
		}
		now := time.Now().UTC()
		return !tm.Before(now.Add(-5*time.Second)) && !tm.After(now.Add(5*time.Second))
	})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO load_state")).
		WithArgs(
			1,
			"RUNNING",
			"CC",
			state.Voltage,
			state.Current,
			state.Power,
			state.ChargeAh,
			state.EnergyWh,
			state.ElapsedSeconds,
			`["TIMEOUT"]`,
			isUTCRecent,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Save(context.Background(), state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStateSQLite_Save_ConvertsGivenTimeToUTC(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	repo := repository.NewStateSQLite(db)

	original := time.Date(2023, 10, 5, 12, 34, 56, 0, time.FixedZone("UTC+9", 9*3600))
	expectedUTC := original.UTC()

	state := models.LoadState{
		RunState:  models.Stopped,
		Mode:      models.ModeBattery,
		Voltage:   3.7,
		UpdatedAt: original,
	}

	isExactUTC := sqlmockArgumentFunc(func(v driver.Value) bool {
		tm, ok := v.(time.Time)
		return ok && tm.Equal(expectedUTC) && tm.Location() == time.UTC
	})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO load_state")).
		WithArgs(1, "STOPPED", "BATTERY", 3.7, 0.0, 0.0, 0.0, 0.0, 0.0, "", isExactUTC).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Save(context.Background(), state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStateSQLite_Save_ExecErrorIsPropagated(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	repo := repository.NewStateSQLite(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO load_state")).
		WillReturnError(errors.New("db down"))

	if err := repo.Save(context.Background(), models.LoadState{RunState: models.Running}); err == nil {
		t.Fatalf("Save() expected error, got nil")
	}
}

func TestStateSQLite_Load_NoRowsReturnsZeroValue(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	repo := repository.NewStateSQLite(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectStatePrefix)).
		WithArgs(1).
		WillReturnError(sql.ErrNoRows)

	got, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, models.LoadState{}) {
		t.Fatalf("Load() expected zero state, got: %+v", got)
	}
}

func TestStateSQLite_Load_HappyPath(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	repo := repository.NewStateSQLite(db)

	nonUTC := time.Date(2024, 2, 1, 8, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))
	rows := sqlmock.NewRows(stateCols).
		AddRow(1, "RUNNING", "CV", 5.0, 1.5, 7.5, 0.25, 1.25, 600.0, `["TIMEOUT","MALFORMED"]`, nonUTC)

	mock.ExpectQuery(regexp.QuoteMeta(selectStatePrefix)).
		WithArgs(1).
		WillReturnRows(rows)

	got, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	want := models.LoadState{
		ID:             1,
		RunState:       models.Running,
		Mode:           models.ModeConstantVoltage,
		Voltage:        5,
		Current:        1.5,
		Power:          7.5,
		ChargeAh:       0.25,
		EnergyWh:       1.25,
		ElapsedSeconds: 600,
		Faults:         []string{"TIMEOUT", "MALFORMED"},
		UpdatedAt:      nonUTC.UTC(),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Load() mismatch:\n got=%+v\nwant=%+v", got, want)
	}
	if got.UpdatedAt.Location() != time.UTC {
		t.Fatalf("Load() UpdatedAt not UTC: %v", got.UpdatedAt.Location())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStateSQLite_Load_InvalidFaultsJSON(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	repo := repository.NewStateSQLite(db)

	rows := sqlmock.NewRows(stateCols).
		AddRow(1, "STOPPED", "CC", 0.0, 0.0, 0.0, 0.0, 0.0, 0.0, `{not: "an array"}`, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta(selectStatePrefix)).
		WithArgs(1).
		WillReturnRows(rows)

	if _, err := repo.Load(context.Background()); err == nil {
		t.Fatalf("Load() expected error due to invalid faults JSON, got nil")
	}
}

type sqlmockArgumentFunc func(v driver.Value) bool

func (f sqlmockArgumentFunc) Match(v driver.Value) bool {
	return f(v)
}
