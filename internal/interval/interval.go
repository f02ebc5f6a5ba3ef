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

// Package interval converts between wall-clock time and the 10-minute
// "rolling interval" numbering used throughout the exposure key wire format.
package interval

import (
	"time"

	"github.com/exposure-notifications/export-engine/pkg/timeutils"
)

// Length is the duration of one rolling interval.
const Length = 10 * time.Minute

// FromTime returns the rolling interval number containing t, in UTC.
func FromTime(t time.Time) int32 {
	return int32(t.UTC().Unix() / int64(Length.Seconds()))
}

// At returns the UTC time at the start of interval number n.
func At(n int32) time.Time {
	return time.Unix(int64(n)*int64(Length.Seconds()), 0).UTC()
}

// StartOfDayUTC truncates t to UTC midnight on the calendar day t falls on,
// the same truncation the teacher's tools/interval/main.go applies via
// timeutils.Midnight before walking a +/- N day interval chart.
func StartOfDayUTC(t time.Time) time.Time {
	return timeutils.UTCMidnight(t)
}

// SubtractDays returns t shifted backwards by the given number of whole
// calendar days.
func SubtractDays(t time.Time, days uint) time.Time {
	return timeutils.SubtractDays(t, days)
}

// AddDays returns t shifted forwards by the given number of whole calendar
// days.
func AddDays(t time.Time, days uint) time.Time {
	return timeutils.AddDays(t, days)
}
