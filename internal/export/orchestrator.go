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

package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/exposure-notifications/export-engine/internal/database"
	exportdatabase "github.com/exposure-notifications/export-engine/internal/export/database"
	"github.com/exposure-notifications/export-engine/internal/interval"
	"github.com/exposure-notifications/export-engine/internal/model"
	"github.com/exposure-notifications/export-engine/internal/storage"
	"github.com/exposure-notifications/export-engine/pkg/logging"

	"github.com/hashicorp/go-multierror"
	"github.com/sethvargo/go-retry"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

// exportLockID is the global lock every node contends for before running a
// tick. Only one node's tick does any work at a time; the rest exit cleanly.
const exportLockID = "export_files"

const (
	oneDay               = 24 * time.Hour
	blobOperationTimeout = 50 * time.Second
)

// Tick runs one export() pass: it acquires the global lock, enumerates the
// ExportConfigs due at the current time, and runs the orchestrator (C8)
// against each in turn. Failure to acquire the lock is not an error; it
// means another node already owns this tick.
func (s *Server) Tick(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	db := s.env.Database()

	unlock, err := db.Lock(ctx, exportLockID, s.config.CreateTimeout)
	if err != nil {
		if errors.Is(err, database.ErrAlreadyLocked) {
			logger.Infof("lock %q is held by another node, skipping this tick", exportLockID)
			return nil
		}
		return fmt.Errorf("acquiring lock %q: %w", exportLockID, err)
	}
	defer func() {
		if err := unlock(); err != nil {
			logger.Errorf("releasing lock %q: %v", exportLockID, err)
		} else {
			logger.Debugf("released lock %q", exportLockID)
		}
	}()

	now := time.Now().UTC()
	exportDB := exportdatabase.New(db)
	configs, err := exportDB.FindDueAt(ctx, now)
	if err != nil {
		return fmt.Errorf("enumerating due export configs: %w", err)
	}
	logger.Infof("export tick: %d configs due at %v", len(configs), now)

	var result *multierror.Error
	for _, ec := range configs {
		if err := s.exportConfig(ctx, ec, now); err != nil {
			logger.Errorf("export config %d: %v", ec.ConfigID, err)
			recordConfigResult(ctx, ec, false)
			result = multierror.Append(result, fmt.Errorf("config %d: %w", ec.ConfigID, err))
			continue
		}
		recordConfigResult(ctx, ec, true)
	}
	return result.ErrorOrNil()
}

// exportConfig runs the full C8 algorithm for a single ExportConfig: window
// computation, pool assembly, big/medium/daily batch filtering, and index
// publication.
func (s *Server) exportConfig(ctx context.Context, ec *model.ExportConfig, now time.Time) error {
	logger := logging.FromContext(ctx)
	db := s.env.Database()
	exportDB := exportdatabase.New(db)

	sigInfos, err := exportDB.LookupSignatureInfos(ctx, ec.SignatureInfoIDs, now)
	if err != nil {
		return fmt.Errorf("loading signature infos: %w", err)
	}
	signers, err := s.loadSigners(ctx, sigInfos)
	if err != nil {
		return fmt.Errorf("loading signers: %w", err)
	}

	startOfToday := interval.StartOfDayUTC(now)
	until := startOfToday
	if ec.ExportCurrentDay {
		until = now
	}
	fromRed := startOfToday.Add(-ec.PeriodRedWarnings)
	fromYellow := startOfToday.Add(-ec.PeriodYellowWarnings)

	redExposures, err := db.FindForExport(ctx, fromRed, until, model.DiagnosisTypeRed, ec.Region)
	if err != nil {
		return fmt.Errorf("finding red exposures: %w", err)
	}
	yellowExposures, err := db.FindForExport(ctx, fromYellow, until, model.DiagnosisTypeYellow, ec.Region)
	if err != nil {
		return fmt.Errorf("finding yellow exposures: %w", err)
	}
	allExposures := append(redExposures, yellowExposures...)

	indexFile := &model.IndexFile{}

	// Big batch.
	bigStart := interval.FromTime(startOfToday.Add(-ec.PeriodOfBigFile))
	end := interval.FromTime(until)
	bigPrefix := fmt.Sprintf("batch_full%ddays", int(ec.PeriodOfBigFile/oneDay))
	bigPaths, err := s.exportExposures(ctx, ec, bigPrefix, now, startOfToday, until, bigStart,
		filterByInterval(allExposures, bigStart, end), signers)
	if err != nil {
		return fmt.Errorf("exporting big batch: %w", err)
	}
	indexFile.FullBigBatch = &model.Batch{IntervalNumber: int64(bigStart), Files: bigPaths}

	// Medium batch.
	mediumStart := interval.FromTime(startOfToday.Add(-ec.PeriodOfMediumFile))
	mediumPrefix := fmt.Sprintf("batch_full%ddays", int(ec.PeriodOfMediumFile/oneDay))
	mediumPaths, err := s.exportExposures(ctx, ec, mediumPrefix, now, startOfToday, until, mediumStart,
		filterByInterval(allExposures, mediumStart, end), signers)
	if err != nil {
		return fmt.Errorf("exporting medium batch: %w", err)
	}
	indexFile.FullMediumBatch = &model.Batch{IntervalNumber: int64(mediumStart), Files: mediumPaths}

	// Daily batches.
	for date := interval.SubtractDays(startOfToday, uint(ec.PeriodOfDailyFiles/oneDay)); date.Before(until); date = interval.AddDays(date, 1) {
		dayEnd := interval.AddDays(date, 1)
		endTs := dayEnd
		if until.Before(endTs) {
			endTs = until
		}
		startInt := interval.FromTime(date)
		endInt := interval.FromTime(dayEnd)

		paths, err := s.exportExposures(ctx, ec, "batch", now, date, endTs, startInt,
			filterByInterval(allExposures, startInt, endInt), signers)
		if err != nil {
			return fmt.Errorf("exporting daily batch for %v: %w", date, err)
		}
		indexFile.DailyBatches = append(indexFile.DailyBatches, model.Batch{IntervalNumber: int64(startInt), Files: paths})
	}

	return s.publishIndex(ctx, ec, now, indexFile)
}

// loadSigners resolves each SignatureInfo's signing key to a live
// crypto.Signer via the installed KeyManager.
func (s *Server) loadSigners(ctx context.Context, sigInfos []*model.SignatureInfo) ([]*Signer, error) {
	var signers []*Signer
	for _, si := range sigInfos {
		signer, err := s.env.GetSignerForKey(ctx, si.SigningKey)
		if err != nil {
			return nil, fmt.Errorf("signer for key %q: %w", si.SigningKey, err)
		}
		signers = append(signers, &Signer{SignatureInfo: si, Signer: signer})
	}
	return signers, nil
}

// exportExposures partitions exposures into groups of at most
// s.config.MaxRecords, pads the last group, marshals and uploads one archive
// per group, and returns the published object paths in batch order.
func (s *Server) exportExposures(ctx context.Context, ec *model.ExportConfig, prefix string, fileDate, startTs, endTs time.Time, intervalNumber int32, exposures []*model.Exposure, signers []*Signer) ([]string, error) {
	logger := logging.FromContext(ctx)

	groups := groupExposures(exposures, s.config.MaxRecords)
	if len(groups) == 0 {
		logger.Debugf("no exposures for prefix %q, interval %d; nothing to export", prefix, intervalNumber)
		return nil, nil
	}

	last := len(groups) - 1
	groups[last] = padExposures(groups[last], ec.Region, s.config.MinRecords, s.config.PaddingRange)

	win := batchWindow{StartTimestamp: startTs.Unix(), EndTimestamp: endTs.Unix(), Region: ec.Region}
	batchSize := len(groups)

	exportDB := exportdatabase.New(s.env.Database())

	var paths []string
	for i, g := range groups {
		batchNum := i + 1
		objectName := fmt.Sprintf("%s/%d/%s-%d-%d.zip", ec.FilenameRoot, fileDate.Unix(), prefix, intervalNumber, batchNum)

		data, _, err := marshalExportFile(win, g, batchNum, batchSize, signers)
		if err != nil {
			return nil, fmt.Errorf("marshalling batch %d: %w", batchNum, err)
		}

		uploadCtx, cancel := context.WithTimeout(ctx, blobOperationTimeout)
		err = s.env.Blobstore().CreateObject(uploadCtx, ec.BucketName, objectName, data, true, storage.ContentTypeZip)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("uploading batch %d: %w", batchNum, err)
		}

		if err := exportDB.SaveExportFile(ctx, &model.ExportFile{
			BucketName: ec.BucketName,
			Filename:   objectName,
			ConfigID:   ec.ConfigID,
			Region:     ec.Region,
			BatchNum:   batchNum,
			BatchSize:  batchSize,
			Status:     model.ExportFileCreated,
		}); err != nil {
			return nil, fmt.Errorf("recording batch %d: %w", batchNum, err)
		}

		logger.Infof("wrote export file %q (batch %d of %d, %d keys)", objectName, batchNum, batchSize, len(g))
		paths = append(paths, fmt.Sprintf("/%s/%s", ec.BucketName, objectName))
	}
	return paths, nil
}

// publishIndex serialises indexFile, uploads it under the timestamped path
// for this tick, records the bookkeeping row, and atomically flips the
// stable common alias that clients actually poll. The index covers every
// batch for an ExportConfig, so if more than one node is running a tick for
// the same config they must serialise their updates; publishIndex takes a
// per-config lock and retries with backoff while it is held elsewhere,
// rather than failing the whole config out of the tick.
func (s *Server) publishIndex(ctx context.Context, ec *model.ExportConfig, fileDate time.Time, indexFile *model.IndexFile) error {
	logger := logging.FromContext(ctx)
	db := s.env.Database()

	lockID := fmt.Sprintf("export-config-index-%d", ec.ConfigID)
	b := retry.WithMaxRetries(10, retry.NewFibonacci(1*time.Second))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		unlock, err := db.Lock(ctx, lockID, time.Minute)
		if err != nil {
			if errors.Is(err, database.ErrAlreadyLocked) {
				logger.Debugf("index lock %q is held by another node, retrying", lockID)
				return retry.RetryableError(err)
			}
			return err
		}
		defer func() {
			if err := unlock(); err != nil {
				logger.Errorf("releasing index lock %q: %v", lockID, err)
			}
		}()

		data, err := json.Marshal(indexFile)
		if err != nil {
			return fmt.Errorf("marshalling index file: %w", err)
		}

		indexRoot := ec.FilenameRoot
		if ec.IndexPrefix != "" {
			indexRoot = ec.IndexPrefix
		}
		indexPath := fmt.Sprintf("%s/%d/index.json", indexRoot, fileDate.Unix())
		aliasPath := fmt.Sprintf("%s/index.json", indexRoot)

		uploadCtx, cancel := context.WithTimeout(ctx, blobOperationTimeout)
		err = s.env.Blobstore().CreateObject(uploadCtx, ec.BucketName, indexPath, data, true, storage.ContentTypeJSON)
		cancel()
		if err != nil {
			return fmt.Errorf("uploading index file: %w", err)
		}

		exportDB := exportdatabase.New(db)
		if err := exportDB.SaveExportFile(ctx, &model.ExportFile{
			BucketName: ec.BucketName,
			Filename:   indexPath,
			ConfigID:   ec.ConfigID,
			Region:     ec.Region,
			Status:     model.ExportFileCreated,
		}); err != nil {
			return fmt.Errorf("recording index file: %w", err)
		}

		copyCtx, cancel := context.WithTimeout(ctx, blobOperationTimeout)
		err = s.env.Blobstore().CopyObject(copyCtx, ec.BucketName, indexPath, aliasPath)
		cancel()
		if err != nil {
			return fmt.Errorf("publishing index alias: %w", err)
		}

		logger.Infof("published index %q (alias %q)", indexPath, aliasPath)
		return nil
	})
}

// groupExposures partitions exposures into consecutive groups of at most
// size. The final group may be smaller. An empty input yields no groups.
func groupExposures(exposures []*model.Exposure, size int) [][]*model.Exposure {
	if len(exposures) == 0 {
		return nil
	}
	var groups [][]*model.Exposure
	for len(exposures) > 0 {
		n := size
		if n > len(exposures) {
			n = len(exposures)
		}
		groups = append(groups, exposures[:n])
		exposures = exposures[n:]
	}
	return groups
}

// filterByInterval returns the exposures whose IntervalNumber falls in
// [from, until).
func filterByInterval(exposures []*model.Exposure, from, until int32) []*model.Exposure {
	var out []*model.Exposure
	for _, e := range exposures {
		if e.IntervalNumber >= from && e.IntervalNumber < until {
			out = append(out, e)
		}
	}
	return out
}

func recordConfigResult(ctx context.Context, ec *model.ExportConfig, success bool) {
	measure := mTickFailure
	if success {
		measure = mTickSuccess
	}
	ctx, err := tag.New(ctx,
		tag.Upsert(ExportConfigIDTagKey, fmt.Sprintf("%d", ec.ConfigID)),
		tag.Upsert(ExportRegionTagKey, ec.Region))
	if err != nil {
		logging.FromContext(ctx).Warnf("tagging export metrics: %v", err)
		return
	}
	stats.Record(ctx, measure.M(1))
}
