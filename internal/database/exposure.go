// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/exposure-notifications/export-engine/internal/model"
	"github.com/exposure-notifications/export-engine/pkg/base64util"

	pgx "github.com/jackc/pgx/v4"
)

const (
	// InsertExposuresBatchSize is the maximum number of exposures that can be inserted at once.
	InsertExposuresBatchSize = 500
)

// FindForExport returns the exposures of the given diagnosisType and region
// whose created_at timestamp lies in [from, until). This is the sole read
// path the export engine uses against the exposure table. The results are
// sorted by raw exposure key; the caller sorts its batches again before
// marshalling.
func (db *DB) FindForExport(ctx context.Context, from, until time.Time, diagnosisType, region string) ([]*model.Exposure, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT
			exposure_key, transmission_risk, interval_number, interval_count, region, diagnosis_type, created_at, local_provenance
		FROM
			Exposure
		WHERE
			region = $1
			AND diagnosis_type = $2
			AND created_at >= $3
			AND created_at < $4
		`, region, diagnosisType, from, until)
	if err != nil {
		return nil, fmt.Errorf("querying exposures: %w", err)
	}
	defer rows.Close()

	var exposures []*model.Exposure
	for rows.Next() {
		var (
			m          model.Exposure
			encodedKey string
		)
		if err := rows.Scan(&encodedKey, &m.TransmissionRisk, &m.IntervalNumber, &m.IntervalCount,
			&m.Region, &m.DiagnosisType, &m.CreatedAt, &m.LocalProvenance); err != nil {
			return nil, fmt.Errorf("scanning exposure: %w", err)
		}
		key, err := decodeExposureKey(encodedKey)
		if err != nil {
			return nil, fmt.Errorf("decoding exposure key: %w", err)
		}
		m.ExposureKey = key
		exposures = append(exposures, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(exposures, func(i, j int) bool {
		return string(exposures[i].ExposureKey) < string(exposures[j].ExposureKey)
	})

	return exposures, nil
}

// InsertExposures inserts a set of exposures. This is the ingestion-side
// write path; the export engine never calls it, but tests use it to seed
// fixtures.
func (db *DB) InsertExposures(ctx context.Context, exposures []*model.Exposure) error {
	return db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		const stmtName = "insert exposures"
		_, err := tx.Prepare(ctx, stmtName, `
			INSERT INTO
				Exposure
			    (exposure_key, transmission_risk, interval_number, interval_count, region, diagnosis_type, created_at, local_provenance)
			VALUES
			  ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (exposure_key) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("preparing insert statement: %v", err)
		}

		for _, inf := range exposures {
			if _, err := tx.Exec(ctx, stmtName, encodeExposureKey(inf.ExposureKey), inf.TransmissionRisk,
				inf.IntervalNumber, inf.IntervalCount, inf.Region, inf.DiagnosisType, inf.CreatedAt, inf.LocalProvenance); err != nil {
				return fmt.Errorf("inserting exposure: %v", err)
			}
		}
		return nil
	})
}

// DeleteExposures deletes exposures created before "before" date. Returns the number of records deleted.
func (db *DB) DeleteExposures(ctx context.Context, before time.Time) (int64, error) {
	var count int64
	// ReadCommitted is sufficient here because we are dealing with historical, immutable rows.
	err := db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			DELETE FROM
				Exposure
			WHERE
				created_at < $1
			`, before)
		if err != nil {
			return fmt.Errorf("deleting exposures: %v", err)
		}
		count = result.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func encodeExposureKey(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeExposureKey(encoded string) ([]byte, error) {
	return base64util.DecodeString(encoded)
}
