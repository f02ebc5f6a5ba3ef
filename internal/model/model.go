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

// Package model is a model abstraction of the records the export engine
// reads and writes.
package model

import (
	"errors"
	"time"
)

// Diagnosis types carried by an Exposure. These affect retention/export
// windowing only; they are never written to the wire format.
const (
	DiagnosisTypeRed    = "red-warning"
	DiagnosisTypeYellow = "yellow-warning"
	DiagnosisTypeGreen  = "green-warning"
)

// Export file lifecycle states.
const (
	ExportFileCreated = "EXPORT_FILE_CREATED"
	ExportFileDeleted = "EXPORT_FILE_DELETED"
)

const oneDay = 24 * time.Hour

// Exposure is one confirmed (or suspected) Temporary Exposure Key, as
// delivered by the publish path. The export engine treats this table as
// read-only.
type Exposure struct {
	ExposureKey      []byte
	TransmissionRisk int
	IntervalNumber   int32
	IntervalCount    int32
	Region           string
	DiagnosisType    string
	CreatedAt        time.Time
	LocalProvenance  bool
}

// SignatureInfo describes one signing identity whose key material is held
// externally by a keys.KeyManager.
type SignatureInfo struct {
	ID                int64
	SigningKey        string
	SigningKeyVersion string
	SigningKeyID      string
	EndTimestamp      time.Time
}

// Expired reports whether this signing identity's key has expired as of t.
func (s *SignatureInfo) Expired(t time.Time) bool {
	return !s.EndTimestamp.IsZero() && s.EndTimestamp.Before(t)
}

// ExportConfig is a scheduling unit: one region's worth of periodic export
// windows, signed by a set of SignatureInfo identities.
type ExportConfig struct {
	ConfigID             int64
	Region               string
	BucketName           string
	FilenameRoot         string
	PeriodOfBigFile      time.Duration
	PeriodOfMediumFile   time.Duration
	PeriodOfDailyFiles   time.Duration
	PeriodRedWarnings    time.Duration
	PeriodYellowWarnings time.Duration
	SignatureInfoIDs     []int64
	From                 time.Time
	Thru                 time.Time
	ExportCurrentDay     bool
	IndexPrefix          string
}

// Validate checks the structural invariants of an ExportConfig.
func (ec *ExportConfig) Validate() error {
	if ec.Region == "" {
		return errors.New("region cannot be empty")
	}
	if ec.BucketName == "" {
		return errors.New("bucketName cannot be empty")
	}
	if ec.PeriodOfDailyFiles > oneDay {
		return errors.New("periodOfDailyFiles must not exceed 24h")
	}
	return nil
}

// ExportFile is a bookkeeping row for one object uploaded by the
// orchestrator during a single export() tick.
type ExportFile struct {
	BucketName string
	Filename   string
	ConfigID   int64
	Region     string
	BatchNum   int
	BatchSize  int
	Status     string
}

// Batch is one entry of the public index JSON: an interval number and the
// object paths that make it up.
type Batch struct {
	IntervalNumber int64    `json:"intervalNumber"`
	Files          []string `json:"files"`
}

// IndexFile is the public, client-polled manifest of the most recent export
// run for a configuration.
type IndexFile struct {
	FullBigBatch    *Batch  `json:"fullBigBatch,omitempty"`
	FullMediumBatch *Batch  `json:"fullMediumBatch,omitempty"`
	DailyBatches    []Batch `json:"dailyBatches"`
}
