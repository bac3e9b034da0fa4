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

package lease

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/azblobemu/metastore/internal/storeerr"
)

func TestLease(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Lease Suite")
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var _ = Describe("lease state machine", func() {
	It("acquires, renews, and releases a fixed lease (S1)", func() {
		t0 := epoch
		l, err := Acquire(New(), t0, 30, "L1")
		Expect(err).To(Succeed())
		Expect(l.ID).To(Equal("L1"))
		Expect(l.State).To(Equal(Leased))
		Expect(l.ExpireTime).To(Equal(t0.Add(30 * time.Second)))

		t1 := t0.Add(20 * time.Second)
		l = l.Project(t1)
		l, err = Renew(l, t1, "L1")
		Expect(err).To(Succeed())
		Expect(l.ExpireTime).To(Equal(t1.Add(30 * time.Second)))

		t2 := t0.Add(25 * time.Second)
		l = l.Project(t2)
		l, err = Release(l, "L1")
		Expect(err).To(Succeed())
		Expect(l.State).To(Equal(Available))
		Expect(l.ID).To(BeEmpty())
	})

	It("projects an expired lease on read and collapses it on write (S2)", func() {
		t0 := epoch
		l, err := Acquire(New(), t0, 15, "L1")
		Expect(err).To(Succeed())

		t1 := t0.Add(20 * time.Second)
		projected := l.Project(t1)
		Expect(projected.State).To(Equal(Expired))
		Expect(projected.Status).To(Equal(Unlocked))

		Expect(CheckWrite(projected, "")).To(Succeed())
		collapsed := CollapseAfterWrite(projected)
		Expect(collapsed.State).To(Equal(Available))
		Expect(collapsed.ID).To(BeEmpty())
	})

	It("breaks an infinite lease then blocks acquire until broken (S3)", func() {
		t0 := epoch
		l, err := Acquire(New(), t0, -1, "L1")
		Expect(err).To(Succeed())

		t1 := t0.Add(10 * time.Second)
		period := 30
		l, leaseTime, err := Break(l.Project(t1), t1, &period)
		Expect(err).To(Succeed())
		Expect(l.State).To(Equal(Breaking))
		Expect(leaseTime).To(Equal(int64(30)))

		t2 := t0.Add(20 * time.Second)
		_, err = Acquire(l.Project(t2), t2, -1, "L2")
		Expect(err).To(MatchError(storeerr.ErrLeaseAlreadyPresent))

		t3 := t0.Add(45 * time.Second)
		projected := l.Project(t3)
		Expect(projected.State).To(Equal(Broken))
		acquired, err := Acquire(projected, t3, -1, "L2")
		Expect(err).To(Succeed())
		Expect(acquired.ID).To(Equal("L2"))
	})

	It("rejects an invalid lease duration", func() {
		_, err := Acquire(New(), epoch, 5, "")
		Expect(err).To(MatchError(storeerr.ErrInvalidLeaseDuration))

		_, err = Acquire(New(), epoch, 61, "")
		Expect(err).To(MatchError(storeerr.ErrInvalidLeaseDuration))
	})

	It("rejects an invalid break period", func() {
		l, _ := Acquire(New(), epoch, -1, "L1")
		period := 61
		_, _, err := Break(l, epoch, &period)
		Expect(err).To(MatchError(storeerr.ErrInvalidLeaseBreakPeriod))
	})

	It("treats acquire with the same proposed id as idempotent", func() {
		l, _ := Acquire(New(), epoch, 30, "L1")
		again, err := Acquire(l, epoch, 30, "L1")
		Expect(err).To(Succeed())
		Expect(again.ID).To(Equal("L1"))
	})

	It("rejects acquire with no proposed id against a lease held by someone else", func() {
		l, _ := Acquire(New(), epoch, 30, "L1")
		_, err := Acquire(l, epoch, 30, "")
		Expect(err).To(MatchError(storeerr.ErrLeaseAlreadyPresent))
	})

	It("rejects change from breaking and from available", func() {
		l, _ := Acquire(New(), epoch, -1, "L1")
		period := 10
		breaking, _, _ := Break(l, epoch, &period)
		_, err := Change(breaking, "L1", "L2")
		Expect(err).To(MatchError(storeerr.ErrLeaseIsBreakingAndCannotBeChanged))

		_, err = Change(New(), "L1", "L2")
		Expect(err).To(MatchError(storeerr.ErrLeaseNotPresent))
	})

	It("gates writes on a locked lease missing or mismatched id", func() {
		l, _ := Acquire(New(), epoch, 30, "L1")
		Expect(CheckWrite(l, "")).To(MatchError(storeerr.ErrLeaseIdMissing))
		Expect(CheckWrite(l, "L2")).To(MatchError(storeerr.ErrLeaseIdMismatchWithBlobOperation))
		Expect(CheckWrite(l, "L1")).To(Succeed())
	})

	It("rejects a lease id on an unlocked write", func() {
		Expect(CheckWrite(New(), "L1")).To(MatchError(storeerr.ErrLeaseLost))
	})

	It("is idempotent under repeated projection", func() {
		l, _ := Acquire(New(), epoch, 15, "L1")
		t1 := epoch.Add(time.Minute)
		once := l.Project(t1)
		twice := once.Project(t1)
		Expect(once).To(Equal(twice))
	})
})
