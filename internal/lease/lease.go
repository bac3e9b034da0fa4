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

// Package lease implements the container/blob lease state machine as
// a pure value type. Every transition takes the caller's logical
// clock explicitly; nothing in this package reads time.Now.
package lease

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/azblobemu/metastore/internal/storeerr"
)

type State string

const (
	Available State = "Available"
	Leased    State = "Leased"
	Breaking  State = "Breaking"
	Broken    State = "Broken"
	Expired   State = "Expired"
)

type Status string

const (
	Locked   Status = "Locked"
	Unlocked Status = "Unlocked"
)

type DurationType string

const (
	Fixed    DurationType = "Fixed"
	Infinite DurationType = "Infinite"
)

// Lease is an immutable snapshot of the lease record embedded in a
// container or blob row. The zero value has an empty State and Status
// and is not treated as Available; use New for a fresh row.
type Lease struct {
	ID           string
	Status       Status
	State        State
	DurationType DurationType
	DurationSecs int
	ExpireTime   time.Time
	BreakTime    time.Time
}

// New returns the unlocked, available "never leased" state for a
// fresh container or blob row.
func New() Lease {
	return Lease{Status: Unlocked, State: Available, DurationSecs: -1}
}

// Project applies the time-driven transitions against now, and is
// idempotent: Project(Project(l, t), t) == Project(l, t).
func (l Lease) Project(now time.Time) Lease {
	switch {
	case l.State == Leased && l.DurationType == Fixed && now.After(l.ExpireTime):
		l.State = Expired
		l.Status = Unlocked
		l.DurationType = ""
		l.ExpireTime = time.Time{}
		l.BreakTime = time.Time{}
	case l.State == Breaking && now.After(l.BreakTime):
		l.State = Broken
		l.Status = Unlocked
		l.DurationType = ""
		l.ExpireTime = time.Time{}
		l.BreakTime = time.Time{}
	}
	return l
}

func validDuration(seconds int) bool {
	return seconds == -1 || (seconds >= 15 && seconds <= 60)
}

// Acquire takes an available, expired, or broken lease and locks it.
// l must already be projected against now.
func Acquire(l Lease, now time.Time, durationSeconds int, proposedID string) (Lease, error) {
	switch l.State {
	case Breaking:
		return l, storeerr.ErrLeaseAlreadyPresent
	case Leased:
		if !strings.EqualFold(proposedID, l.ID) {
			return l, storeerr.ErrLeaseAlreadyPresent
		}
	case Available, Expired, Broken:
		// fall through to acquire below
	default:
		return l, storeerr.ErrLeaseAlreadyPresent
	}

	if !validDuration(durationSeconds) {
		return l, storeerr.ErrInvalidLeaseDuration
	}

	id := proposedID
	if id == "" {
		id = uuid.NewString()
	}

	out := Lease{
		ID:           id,
		Status:       Locked,
		State:        Leased,
		DurationSecs: durationSeconds,
	}
	if durationSeconds == -1 {
		out.DurationType = Infinite
	} else {
		out.DurationType = Fixed
		out.ExpireTime = now.Add(time.Duration(durationSeconds) * time.Second)
	}
	return out, nil
}

// Renew extends a currently leased lease's expiry from now.
func Renew(l Lease, now time.Time, leaseID string) (Lease, error) {
	switch l.State {
	case Available, Expired:
		return l, storeerr.ErrLeaseIdMismatchWithLeaseOperation
	case Breaking, Broken:
		return l, storeerr.ErrLeaseIsBrokenAndCannotBeRenewed
	}

	if !strings.EqualFold(leaseID, l.ID) {
		return l, storeerr.ErrLeaseIdMismatchWithLeaseOperation
	}

	out := l
	out.State = Leased
	out.Status = Locked
	if validDuration(out.DurationSecs) && out.DurationSecs != -1 {
		out.DurationType = Fixed
		out.ExpireTime = now.Add(time.Duration(out.DurationSecs) * time.Second)
	} else {
		out.DurationType = Infinite
		out.ExpireTime = time.Time{}
	}
	return out, nil
}

// Change swaps the lease id on an actively leased lease.
func Change(l Lease, currentID, proposedID string) (Lease, error) {
	switch l.State {
	case Available, Expired, Broken:
		return l, storeerr.ErrLeaseNotPresent
	case Breaking:
		return l, storeerr.ErrLeaseIsBreakingAndCannotBeChanged
	}

	if !strings.EqualFold(currentID, l.ID) && !strings.EqualFold(currentID, proposedID) {
		return l, storeerr.ErrLeaseIdMismatchWithLeaseOperation
	}

	out := l
	out.ID = proposedID
	return out, nil
}

// Release unlocks a leased or breaking lease back to Available.
func Release(l Lease, leaseID string) (Lease, error) {
	if l.State == Available {
		return l, storeerr.ErrLeaseIdMismatch
	}
	if !strings.EqualFold(leaseID, l.ID) {
		return l, storeerr.ErrLeaseIdMismatch
	}
	return Lease{Status: Unlocked, State: Available, DurationSecs: -1}, nil
}

// Break starts (or accelerates) the break of a locked lease toward
// Broken. breakPeriod of nil means the caller omitted the break
// period argument.
func Break(l Lease, now time.Time, breakPeriod *int) (Lease, int64, error) {
	if l.State == Available {
		return l, 0, storeerr.ErrLeaseNotPresent
	}
	if breakPeriod != nil && (*breakPeriod < 0 || *breakPeriod > 60) {
		return l, 0, storeerr.ErrInvalidLeaseBreakPeriod
	}

	if l.State == Expired || l.State == Broken || breakPeriod == nil || *breakPeriod == 0 {
		return Lease{Status: Unlocked, State: Broken, DurationSecs: -1}, 0, nil
	}

	var newBreakTime time.Time
	if l.DurationType == Infinite {
		newBreakTime = now.Add(time.Duration(*breakPeriod) * time.Second)
	} else {
		candidate := now.Add(time.Duration(*breakPeriod) * time.Second)
		if candidate.After(l.ExpireTime) {
			newBreakTime = l.ExpireTime
		} else {
			newBreakTime = candidate
		}
	}
	if !l.BreakTime.IsZero() && l.BreakTime.Before(newBreakTime) {
		newBreakTime = l.BreakTime
	}

	out := l
	out.State = Breaking
	out.Status = Locked
	out.BreakTime = newBreakTime

	leaseTime := int64((newBreakTime.Sub(now) + 500*time.Millisecond) / time.Second)
	if leaseTime < 0 {
		leaseTime = 0
	}
	return out, leaseTime, nil
}

// CheckWrite rejects a write against a locked lease unless the caller
// supplied the matching lease id. suppliedLeaseID is the
// access-condition lease id the caller passed, which may be empty.
func CheckWrite(l Lease, suppliedLeaseID string) error {
	if l.Status == Locked {
		if suppliedLeaseID == "" {
			return storeerr.ErrLeaseIdMissing
		}
		if !strings.EqualFold(suppliedLeaseID, l.ID) {
			return storeerr.ErrLeaseIdMismatchWithBlobOperation
		}
		return nil
	}
	if suppliedLeaseID != "" {
		return storeerr.ErrLeaseLost
	}
	return nil
}

// CheckRead rejects a read against a locked lease unless the caller
// supplied the matching lease id.
func CheckRead(l Lease, suppliedLeaseID string) error {
	if l.Status != Locked {
		return nil
	}
	if suppliedLeaseID == "" {
		return storeerr.ErrLeaseIdMissing
	}
	if !strings.EqualFold(suppliedLeaseID, l.ID) {
		return storeerr.ErrLeaseIdMismatchWithBlobOperation
	}
	return nil
}

// CollapseAfterWrite collapses a lease that had projected to Expired
// or Broken back to Available, as a successful write against it
// does.
func CollapseAfterWrite(l Lease) Lease {
	if l.State == Expired || l.State == Broken {
		return Lease{Status: Unlocked, State: Available, DurationSecs: -1}
	}
	return l
}
