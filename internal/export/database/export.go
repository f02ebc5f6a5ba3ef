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

// Package database is the storage layer for export configuration,
// signing identities, and the bookkeeping of files the orchestrator has
// already published.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/exposure-notifications/export-engine/internal/database"
	"github.com/exposure-notifications/export-engine/internal/model"
	"github.com/exposure-notifications/export-engine/internal/storage"
	"github.com/exposure-notifications/export-engine/pkg/logging"

	pgx "github.com/jackc/pgx/v4"
)

type ExportDB struct {
	db *database.DB
}

func New(db *database.DB) *ExportDB {
	return &ExportDB{
		db: db,
	}
}

// AddExportConfig creates a new ExportConfig record.
func (db *ExportDB) AddExportConfig(ctx context.Context, ec *model.ExportConfig) error {
	if err := ec.Validate(); err != nil {
		return err
	}

	var thru *time.Time
	if !ec.Thru.IsZero() {
		thru = &ec.Thru
	}
	return db.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO
				ExportConfig
				(bucket_name, filename_root, region,
				 period_of_big_file_seconds, period_of_medium_file_seconds, period_of_daily_files_seconds,
				 period_red_warnings_seconds, period_yellow_warnings_seconds,
				 from_timestamp, thru_timestamp, signature_info_ids,
				 export_current_day, index_prefix)
			VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING config_id
		`, ec.BucketName, ec.FilenameRoot, ec.Region,
			int(ec.PeriodOfBigFile.Seconds()), int(ec.PeriodOfMediumFile.Seconds()), int(ec.PeriodOfDailyFiles.Seconds()),
			int(ec.PeriodRedWarnings.Seconds()), int(ec.PeriodYellowWarnings.Seconds()),
			ec.From, thru, ec.SignatureInfoIDs, ec.ExportCurrentDay, ec.IndexPrefix)

		if err := row.Scan(&ec.ConfigID); err != nil {
			return fmt.Errorf("fetching config_id: %w", err)
		}
		return nil
	})
}

// UpdateExportConfig updates an existing ExportConfig record.
func (db *ExportDB) UpdateExportConfig(ctx context.Context, ec *model.ExportConfig) error {
	if err := ec.Validate(); err != nil {
		return err
	}

	var thru *time.Time
	if !ec.Thru.IsZero() {
		thru = &ec.Thru
	}
	return db.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE
				ExportConfig
			SET
				bucket_name = $1, filename_root = $2, region = $3,
				period_of_big_file_seconds = $4, period_of_medium_file_seconds = $5, period_of_daily_files_seconds = $6,
				period_red_warnings_seconds = $7, period_yellow_warnings_seconds = $8,
				from_timestamp = $9, thru_timestamp = $10, signature_info_ids = $11,
				export_current_day = $12, index_prefix = $13
			WHERE config_id = $14
		`, ec.BucketName, ec.FilenameRoot, ec.Region,
			int(ec.PeriodOfBigFile.Seconds()), int(ec.PeriodOfMediumFile.Seconds()), int(ec.PeriodOfDailyFiles.Seconds()),
			int(ec.PeriodRedWarnings.Seconds()), int(ec.PeriodYellowWarnings.Seconds()),
			ec.From, thru, ec.SignatureInfoIDs, ec.ExportCurrentDay, ec.IndexPrefix, ec.ConfigID)
		if err != nil {
			return fmt.Errorf("updating export config: %w", err)
		}
		if result.RowsAffected() != 1 {
			return fmt.Errorf("no rows updated")
		}
		return nil
	})
}

func (db *ExportDB) GetExportConfig(ctx context.Context, id int64) (*model.ExportConfig, error) {
	conn, err := db.db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, selectExportConfigSQL+`WHERE config_id = $1`, id)
	return scanOneExportConfig(row)
}

func (db *ExportDB) GetAllExportConfigs(ctx context.Context) ([]*model.ExportConfig, error) {
	conn, err := db.db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, selectExportConfigSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []*model.ExportConfig{}
	for rows.Next() {
		ec, err := scanOneExportConfig(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, ec)
	}

	return results, rows.Err()
}

// FindDueAt returns every ExportConfig whose From is before t and whose Thru,
// if set, is after t, in ascending config_id order. This is the config enumeration step of the scheduler tick (C9.2).
func (db *ExportDB) FindDueAt(ctx context.Context, t time.Time) ([]*model.ExportConfig, error) {
	conn, err := db.db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, selectExportConfigSQL+`
		WHERE
			from_timestamp < $1
			AND (thru_timestamp IS NULL OR thru_timestamp > $1)
		ORDER BY config_id ASC
	`, t)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*model.ExportConfig
	for rows.Next() {
		ec, err := scanOneExportConfig(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, ec)
	}
	return results, rows.Err()
}

const selectExportConfigSQL = `
	SELECT
		config_id, bucket_name, filename_root, region,
		period_of_big_file_seconds, period_of_medium_file_seconds, period_of_daily_files_seconds,
		period_red_warnings_seconds, period_yellow_warnings_seconds,
		from_timestamp, thru_timestamp, signature_info_ids,
		export_current_day, index_prefix
	FROM
		ExportConfig
`

func scanOneExportConfig(row pgx.Row) (*model.ExportConfig, error) {
	var (
		m                                       model.ExportConfig
		bigSeconds, mediumSeconds, dailySeconds int
		redSeconds, yellowSeconds               int
		thru                                    *time.Time
	)
	if err := row.Scan(&m.ConfigID, &m.BucketName, &m.FilenameRoot, &m.Region,
		&bigSeconds, &mediumSeconds, &dailySeconds,
		&redSeconds, &yellowSeconds,
		&m.From, &thru, &m.SignatureInfoIDs,
		&m.ExportCurrentDay, &m.IndexPrefix); err != nil {
		return nil, err
	}
	m.PeriodOfBigFile = time.Duration(bigSeconds) * time.Second
	m.PeriodOfMediumFile = time.Duration(mediumSeconds) * time.Second
	m.PeriodOfDailyFiles = time.Duration(dailySeconds) * time.Second
	m.PeriodRedWarnings = time.Duration(redSeconds) * time.Second
	m.PeriodYellowWarnings = time.Duration(yellowSeconds) * time.Second
	if thru != nil {
		m.Thru = *thru
	}
	return &m, nil
}

func (db *ExportDB) AddSignatureInfo(ctx context.Context, si *model.SignatureInfo) error {
	if si.SigningKey == "" {
		return fmt.Errorf("signing key cannot be empty for a signature info")
	}

	var thru *time.Time
	if !si.EndTimestamp.IsZero() {
		thru = &si.EndTimestamp
	}
	return db.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO
 				SignatureInfo
				(signing_key, signing_key_version, signing_key_id, thru_timestamp)
			VALUES
				($1, $2, $3, $4)
			RETURNING id
			`, si.SigningKey, si.SigningKeyVersion, si.SigningKeyID, thru)

		if err := row.Scan(&si.ID); err != nil {
			return fmt.Errorf("fetching id: %w", err)
		}
		return nil
	})
}

func (db *ExportDB) UpdateSignatureInfo(ctx context.Context, si *model.SignatureInfo) error {
	var thru *time.Time
	if !si.EndTimestamp.IsZero() {
		thru = &si.EndTimestamp
	}
	return db.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE SignatureInfo
			SET
				signing_key = $1, signing_key_version = $2, signing_key_id = $3, thru_timestamp = $4
			WHERE
				id = $5
 			`, si.SigningKey, si.SigningKeyVersion, si.SigningKeyID, thru, si.ID)
		if err != nil {
			return fmt.Errorf("updating signatureinfo: %w", err)
		}
		if result.RowsAffected() != 1 {
			return fmt.Errorf("no rows updated")
		}
		return nil
	})
}

func (db *ExportDB) ListAllSignatureInfos(ctx context.Context) ([]*model.SignatureInfo, error) {
	conn, err := db.db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
    SELECT
      id, signing_key, signing_key_version, signing_key_id, thru_timestamp
    FROM
      SignatureInfo
    ORDER BY signing_key_id ASC, signing_key_version ASC, thru_timestamp DESC
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sigInfos []*model.SignatureInfo
	for rows.Next() {
		si, err := scanOneSignatureInfo(rows)
		if err != nil {
			return nil, err
		}
		sigInfos = append(sigInfos, si)
	}

	return sigInfos, rows.Err()
}

// LookupSignatureInfos resolves ids to their SignatureInfo rows, keeping only
// those that are still valid as of validUntil. This implements the
// config.signatureInfos filtering step of exportExposures (§4.8).
func (db *ExportDB) LookupSignatureInfos(ctx context.Context, ids []int64, validUntil time.Time) ([]*model.SignatureInfo, error) {
	conn, err := db.db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
    SELECT
      id, signing_key, signing_key_version, signing_key_id, thru_timestamp
    FROM
      SignatureInfo
    WHERE
      id = any($1) AND (thru_timestamp IS NULL OR thru_timestamp >= $2)
  `, ids, validUntil)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sigInfos []*model.SignatureInfo
	for rows.Next() {
		si, err := scanOneSignatureInfo(rows)
		if err != nil {
			return nil, err
		}
		sigInfos = append(sigInfos, si)
	}

	return sigInfos, rows.Err()
}

// GetSignatureInfo looks up a single signature info by ID.
func (db *ExportDB) GetSignatureInfo(ctx context.Context, id int64) (*model.SignatureInfo, error) {
	conn, err := db.db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
		SELECT
			id, signing_key, signing_key_version, signing_key_id, thru_timestamp
		FROM
			SignatureInfo
		WHERE
			id = $1
		`, id)

	return scanOneSignatureInfo(row)
}

func scanOneSignatureInfo(row pgx.Row) (*model.SignatureInfo, error) {
	var info model.SignatureInfo
	var thru *time.Time
	if err := row.Scan(&info.ID, &info.SigningKey, &info.SigningKeyVersion, &info.SigningKeyID, &thru); err != nil {
		return nil, err
	}
	if thru != nil {
		info.EndTimestamp = *thru
	}
	return &info, nil
}

// SaveExportFile records a row for one object the orchestrator has just
// uploaded. Conflicts on filename are treated as a benign re-publish of the
// same tick and are not reported as an error.
func (db *ExportDB) SaveExportFile(ctx context.Context, ef *model.ExportFile) error {
	return db.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO
				ExportFile
				(bucket_name, filename, config_id, region, batch_num, batch_size, status)
			VALUES
				($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (filename) DO NOTHING
			`, ef.BucketName, ef.Filename, ef.ConfigID, ef.Region, ef.BatchNum, ef.BatchSize, ef.Status)
		if err != nil {
			return fmt.Errorf("inserting to ExportFile: %w", err)
		}
		if tag.RowsAffected() == 0 {
			logging.FromContext(ctx).Infof("ExportFile %q already recorded, skipping", ef.Filename)
		}
		return nil
	})
}

// LookupExportFiles returns the filenames published for a given
// ExportConfig that are still in the created state, in ascending filename
// order.
func (db *ExportDB) LookupExportFiles(ctx context.Context, exportConfigID int64) ([]string, error) {
	conn, err := db.db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT
			filename
		FROM
			ExportFile
		WHERE
			config_id = $1
		AND
			status = $2
		ORDER BY
			filename
		`, exportConfigID, model.ExportFileCreated)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var filenames []string
	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			return nil, err
		}
		filenames = append(filenames, filename)
	}
	return filenames, rows.Err()
}

func (db *ExportDB) LookupExportFile(ctx context.Context, filename string) (*model.ExportFile, error) {
	conn, err := db.db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
		SELECT
			bucket_name, filename, config_id, region, batch_num, batch_size, status
		FROM
			ExportFile
		WHERE
			filename = $1
		LIMIT 1
		`, filename)

	ef := model.ExportFile{}
	if err := row.Scan(&ef.BucketName, &ef.Filename, &ef.ConfigID, &ef.Region, &ef.BatchNum, &ef.BatchSize, &ef.Status); err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return &ef, nil
}

// DeleteFilesBefore deletes from the blobstore every file attached to
// configID that is still in the created state and was recorded before the
// given time, and marks its ExportFile row as deleted. It returns the number
// of files deleted. It is invoked by retention cleanup, external to the export tick
// itself (§4.9.5).
func (db *ExportDB) DeleteFilesBefore(ctx context.Context, configID int64, before time.Time, blobstore storage.Blobstore) (int, error) {
	logger := logging.FromContext(ctx)

	type row struct {
		bucketName string
		filename   string
	}
	var files []row
	err := func() error {
		conn, err := db.db.Pool.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquiring connection: %w", err)
		}
		defer conn.Release()

		rows, err := conn.Query(ctx, `
			SELECT
				bucket_name, filename
			FROM
				ExportFile
			WHERE
				config_id = $1
			AND
				status = $2
			AND
				created_at < $3
			`, configID, model.ExportFileCreated, before)
		if err != nil {
			return fmt.Errorf("fetching filenames: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r row
			if err := rows.Scan(&r.bucketName, &r.filename); err != nil {
				return err
			}
			files = append(files, r)
		}
		return rows.Err()
	}()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, f := range files {
		delCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
		if err := blobstore.DeleteObject(delCtx, f.bucketName, f.filename); err != nil {
			cancel()
			return count, fmt.Errorf("delete object: %w", err)
		}
		cancel()

		if err := db.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `UPDATE ExportFile SET status = $1 WHERE filename = $2`, model.ExportFileDeleted, f.filename)
			return err
		}); err != nil {
			return count, err
		}

		logger.Infof("deleted filename %s", f.filename)
		count++
	}

	return count, nil
}
