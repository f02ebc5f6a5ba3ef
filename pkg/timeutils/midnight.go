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

package timeutils

import "time"

// Midnight is an alias for LocalMidnight.
func Midnight(t time.Time) time.Time {
	return LocalMidnight(t)
}

// LocalMidnight truncates t to 00:00:00 in t's own location.
func LocalMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// UTCMidnight truncates t to 00:00:00 UTC on the UTC calendar day t falls on.
func UTCMidnight(t time.Time) time.Time {
	return LocalMidnight(t.UTC())
}
