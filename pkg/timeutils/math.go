// Copyright 2020 the Exposure Notifications Server authors
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

package timeutils

import "time"

// SubtractDays returns t shifted backwards by days calendar days, preserving
// t's time-of-day and location.
func SubtractDays(t time.Time, days uint) time.Time {
	return t.AddDate(0, 0, -int(days))
}

// AddDays returns t shifted forwards by days calendar days, preserving t's
// time-of-day and location.
func AddDays(t time.Time, days uint) time.Time {
	return t.AddDate(0, 0, int(days))
}
