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

// Package export contains OpenCensus metrics and views for export operations.
package export

import (
	"github.com/exposure-notifications/export-engine/pkg/observability"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

const metricPrefix = "export-engine/export"

var (
	ExportConfigIDTagKey = tag.MustNewKey("config_id")
	ExportRegionTagKey   = tag.MustNewKey("region")
)

var (
	mTickSuccess = stats.Int64(metricPrefix+"/config_success", "successful export() passes, by config", stats.UnitDimensionless)
	mTickFailure = stats.Int64(metricPrefix+"/config_failure", "failed export() passes, by config", stats.UnitDimensionless)
)

func init() {
	observability.CollectViews([]*view.View{
		{
			Name:        metricPrefix + "/config_success_count",
			Description: "Count of export() passes that completed successfully, by config and region",
			Measure:     mTickSuccess,
			Aggregation: view.Count(),
			TagKeys:     []tag.Key{ExportConfigIDTagKey, ExportRegionTagKey},
		},
		{
			Name:        metricPrefix + "/config_failure_count",
			Description: "Count of export() passes that failed, by config and region",
			Measure:     mTickFailure,
			Aggregation: view.Count(),
			TagKeys:     []tag.Key{ExportConfigIDTagKey, ExportRegionTagKey},
		},
	}...)
}
