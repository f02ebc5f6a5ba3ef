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
	"crypto"
	"io"
	"testing"
	"time"

	"github.com/exposure-notifications/export-engine/internal/model"
	"github.com/exposure-notifications/export-engine/internal/pb/export"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestMarshalUnmarshalExportFile(t *testing.T) {
	t.Parallel()

	batchStartTime := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	batchEndTime := batchStartTime.Add(1 * time.Hour)

	win := batchWindow{
		StartTimestamp: batchStartTime.Unix(),
		EndTimestamp:   batchEndTime.Unix(),
		Region:         "US",
	}

	exposures := []*model.Exposure{
		{
			ExposureKey:      []byte("ABC"),
			Region:           "US",
			IntervalNumber:   18,
			IntervalCount:    0,
			CreatedAt:        batchStartTime,
			TransmissionRisk: 8,
			DiagnosisType:    model.DiagnosisTypeRed,
		},
		{
			ExposureKey:      []byte("DEF"),
			Region:           "US",
			IntervalNumber:   118,
			IntervalCount:    1,
			CreatedAt:        batchEndTime,
			TransmissionRisk: 1,
			DiagnosisType:    model.DiagnosisTypeYellow,
		},
	}

	signatureInfo := &model.SignatureInfo{
		SigningKey:        "/kms/project/key/1",
		SigningKeyVersion: "1",
		SigningKeyID:      "310",
		EndTimestamp:      batchEndTime,
	}

	signer := &customTestSigner{sig: []byte("deadbeef")}

	blob, digest, err := marshalExportFile(win, exposures, 1, 1, []*Signer{
		{SignatureInfo: signatureInfo, Signer: signer},
	})
	if err != nil {
		t.Fatalf("can't marshal export file: %v", err)
	}
	if digest == "" {
		t.Fatal("expected non-empty digest")
	}

	got, _, err := unmarshalExportFile(blob)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	want := &export.TemporaryExposureKeyExport{
		StartTimestamp: export.Uint64(uint64(batchStartTime.Unix())),
		EndTimestamp:   export.Uint64(uint64(batchEndTime.Unix())),
		Region:         export.String("US"),
		BatchNum:       export.Int32(1),
		BatchSize:      export.Int32(1),
		SignatureInfos: []*export.SignatureInfo{
			{
				SignatureAlgorithm:     export.String("1.2.840.10045.4.3.2"),
				VerificationKeyVersion: export.String("1"),
				VerificationKeyId:      export.String("310"),
			},
		},
		Keys: []*export.TemporaryExposureKey{
			{
				KeyData:                    []byte("ABC"),
				TransmissionRiskLevel:      export.Int32(8),
				RollingStartIntervalNumber: export.Int32(18),
			},
			{
				KeyData:                    []byte("DEF"),
				TransmissionRiskLevel:      export.Int32(1),
				RollingStartIntervalNumber: export.Int32(118),
				RollingPeriod:              export.Int32(1),
			},
		},
	}

	if diff := cmp.Diff(want, got, cmpopts.IgnoreUnexported()); diff != "" {
		t.Fatalf("unmarshal mismatch (-want +got):\n%v", diff)
	}

	sigList, err := unmarshalSignatureFile(blob)
	if err != nil {
		t.Fatalf("unmarshal signature failed: %v", err)
	}
	if len(sigList.Signatures) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(sigList.Signatures))
	}
	if string(sigList.Signatures[0].Signature) != "deadbeef" {
		t.Fatalf("unexpected signature bytes: %q", sigList.Signatures[0].Signature)
	}
}

func TestSortExposures(t *testing.T) {
	t.Parallel()

	exposures := []*model.Exposure{
		{ExposureKey: []byte{0x11}},
		{ExposureKey: []byte{0x00}},
		{ExposureKey: []byte{0x05}},
	}
	sortExposures(exposures)
	want := [][]byte{{0x00}, {0x05}, {0x11}}
	for i, w := range want {
		if string(exposures[i].ExposureKey) != string(w) {
			t.Fatalf("index %d: want %v, got %v", i, w, exposures[i].ExposureKey)
		}
	}
}

type customTestSigner struct {
	sig []byte
	pub crypto.PublicKey
}

func (s *customTestSigner) Public() crypto.PublicKey { return s.pub }
func (s *customTestSigner) Sign(io.Reader, []byte, crypto.SignerOpts) ([]byte, error) {
	return s.sig, nil
}
