package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"electronic_load/internal/models"
)

type StateSQLite struct {
	db *sql.DB
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db}
}

const (
	loadStateRowID = 1

	upsertStateSQL = `
		INSERT INTO load_state (id, run_state, mode, voltage, current, power, charge_ah, energy_wh, elapsed_s, faults, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_state=excluded.run_state,
			mode=excluded.mode,
			voltage=excluded.voltage,
			current=excluded.current,
			power=excluded.power,
			charge_ah=excluded.charge_ah,
			energy_wh=excluded.energy_wh,
			elapsed_s=excluded.elapsed_s,
			faults=excluded.faults,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `
		SELECT id, run_state, mode, voltage, current, power, charge_ah, energy_wh, elapsed_s, faults, updated_at
		FROM load_state WHERE id=?
	`
)

func marshalFaults(faults []string) (string, error) {
	if len(faults) == 0 {
		return "", nil
	}
	b, err := json.Marshal(faults)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalFaults(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var faults []string
	if err := json.Unmarshal([]byte(s), &faults); err != nil {
		return nil, err
	}
	return faults, nil
}

// Save upserts the load_state row (id always 1).
func (r *StateSQLite) Save(ctx context.Context, state models.LoadState) error {
	faults, err := marshalFaults(state.Faults)
	if err != nil {
		return err
	}

	ts := state.UpdatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}

	_, err = r.db.ExecContext(ctx, upsertStateSQL,
		loadStateRowID,
		string(state.RunState),
		string(state.Mode),
		state.Voltage,
		state.Current,
		state.Power,
		state.ChargeAh,
		state.EnergyWh,
		state.ElapsedSeconds,
		faults,
		ts,
	)
	return err
}

// Load fetches the load_state row. A missing row yields the zero state.
func (r *StateSQLite) Load(ctx context.Context) (models.LoadState, error) {
	row := r.db.QueryRowContext(ctx, selectStateSQL, loadStateRowID)

	var s models.LoadState
	var runState, mode, faults string
	if err := row.Scan(
		&s.ID,
		&runState,
		&mode,
		&s.Voltage,
		&s.Current,
		&s.Power,
		&s.ChargeAh,
		&s.EnergyWh,
		&s.ElapsedSeconds,
		&faults,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.LoadState{}, nil
		}
		return models.LoadState{}, err
	}

	codes, err := unmarshalFaults(faults)
	if err != nil {
		return models.LoadState{}, err
	}
	s.RunState = models.RunState(runState)
	s.Mode = models.Mode(mode)
	s.Faults = codes
	s.UpdatedAt = s.UpdatedAt.UTC()

	return s, nil
}
