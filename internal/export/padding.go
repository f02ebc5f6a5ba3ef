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
	"crypto/rand"
	"fmt"
	mrand "math/rand"

	"github.com/exposure-notifications/export-engine/internal/model"
)

// diagnosisTypesForPadding excludes green-warning: the on-wire format never
// carries diagnosisType, and green exposures are never part of the real
// export pool, so padding only needs to resemble red/yellow.
var diagnosisTypesForPadding = []string{model.DiagnosisTypeRed, model.DiagnosisTypeYellow}

// padExposures extends exposures with synthetic keys, up to a jittered
// minimum size, so small real-case counts can't be inferred from archive
// length. An empty input is returned unchanged.
func padExposures(exposures []*model.Exposure, region string, minLength, paddingRange int) []*model.Exposure {
	if len(exposures) == 0 {
		return exposures
	}

	extra := 0
	if paddingRange > 0 {
		extra = mrand.Intn(paddingRange)
	}
	target := minLength + extra

	for len(exposures) < target {
		key, err := randomExposureKey()
		if err != nil {
			// crypto/rand failures are unrecoverable; there is no sane
			// fallback for key material.
			panic(fmt.Sprintf("export: generating padding key: %v", err))
		}

		src1 := exposures[mrand.Intn(len(exposures))]
		src2 := exposures[mrand.Intn(len(exposures))]
		diagnosisType := diagnosisTypesForPadding[mrand.Intn(len(diagnosisTypesForPadding))]

		exposures = append(exposures, &model.Exposure{
			ExposureKey:     key,
			Region:          region,
			IntervalNumber:  src1.IntervalNumber,
			IntervalCount:   src2.IntervalCount,
			DiagnosisType:   diagnosisType,
			LocalProvenance: true,
		})
	}

	return exposures
}

func randomExposureKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
