// Copyright 2021 IBM Corp.
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

package store

// AccessConditions carries the request-supplied access-condition
// headers that gate a mutating or read operation against the current
// lease.
type AccessConditions struct {
	LeaseID string
}

const defaultMaxResults = 2000

func clampMaxResults(n int) int {
	if n <= 0 || n > defaultMaxResults {
		return defaultMaxResults
	}
	return n
}
