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

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/azblobemu/metastore/internal/codec"
	"github.com/azblobemu/metastore/internal/cors"
	"github.com/azblobemu/metastore/internal/storeerr"
	"github.com/azblobemu/metastore/internal/validate"
)

var testDBCount int

// newTestStore opens a fresh, uniquely named in-memory database so no
// rows leak from one spec into the next.
func newTestStore() *Store {
	testDBCount++
	dsn := fmt.Sprintf("file:store_test_%d?mode=memory&cache=shared", testDBCount)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	Expect(err).NotTo(HaveOccurred())
	Expect(Migrate(db)).To(Succeed())
	return &Store{db: db, log: logr.Discard()}
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var _ = Describe("container operations", func() {
	var (
		s   *Store
		ctx = context.Background()
	)

	BeforeEach(func() {
		s = newTestStore()
	})

	It("rejects a container name over 63 characters", func() {
		long := make([]byte, 64)
		for i := range long {
			long[i] = 'a'
		}
		_, err := s.CreateContainer(ctx, epoch, "acct", string(long))
		Expect(err).To(MatchError(validate.ErrContainerNameTooLong))
	})

	It("rejects a duplicate container name", func() {
		_, err := s.CreateContainer(ctx, epoch, "acct", "c")
		Expect(err).NotTo(HaveOccurred())

		_, err = s.CreateContainer(ctx, epoch, "acct", "c")
		Expect(err).To(MatchError(storeerr.ErrContainerAlreadyExists))
	})

	It("cascades tombstones to child blobs on delete (S5)", func() {
		_, err := s.CreateContainer(ctx, epoch, "acct", "c")
		Expect(err).NotTo(HaveOccurred())

		for _, name := range []string{"b1", "b2"} {
			_, err := s.CreateBlob(ctx, epoch, "acct", "c", name, AccessConditions{}, BlockBlob, ContentProperties{}, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = s.CreateSnapshot(ctx, epoch.Add(time.Second), "acct", "c", name, AccessConditions{})
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(s.DeleteContainer(ctx, epoch.Add(2*time.Second), "acct", "c", AccessConditions{})).To(Succeed())

		err = s.CheckContainerExist(ctx, "acct", "c")
		Expect(err).To(MatchError(storeerr.ErrContainerNotFound))

		var deleting []uint
		Expect(s.db.Model(&Blob{}).Where("account_name = ? AND container_name = ?", "acct", "c").
			Pluck("deleting", &deleting).Error).To(Succeed())
		Expect(deleting).To(HaveLen(4))
		for _, d := range deleting {
			Expect(d).To(BeNumerically(">=", 1))
		}
	})
})

var _ = Describe("blob operations", func() {
	var (
		s   *Store
		ctx = context.Background()
	)

	BeforeEach(func() {
		s = newTestStore()
		_, err := s.CreateContainer(ctx, epoch, "acct", "c")
		Expect(err).NotTo(HaveOccurred())
	})

	It("blocks overwrite of an archive-tier blob (S6)", func() {
		_, err := s.CreateBlob(ctx, epoch, "acct", "c", "b", AccessConditions{}, BlockBlob, ContentProperties{}, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		_, rehydrating, err := s.SetTier(ctx, epoch, "acct", "c", "b", AccessConditions{}, TierArchive)
		Expect(err).NotTo(HaveOccurred())
		Expect(rehydrating).To(BeFalse())

		_, err = s.CreateBlob(ctx, epoch, "acct", "c", "b", AccessConditions{}, BlockBlob, ContentProperties{}, nil, nil)
		Expect(err).To(MatchError(storeerr.ErrBlobArchived))

		_, rehydrating, err = s.SetTier(ctx, epoch, "acct", "c", "b", AccessConditions{}, TierHot)
		Expect(err).NotTo(HaveOccurred())
		Expect(rehydrating).To(BeTrue())

		_, err = s.CreateBlob(ctx, epoch, "acct", "c", "b", AccessConditions{}, BlockBlob, ContentProperties{}, nil, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("enforces the delete-snapshots error policy", func() {
		_, err := s.CreateBlob(ctx, epoch, "acct", "c", "b", AccessConditions{}, BlockBlob, ContentProperties{}, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = s.CreateSnapshot(ctx, epoch.Add(time.Second), "acct", "c", "b", AccessConditions{})
		Expect(err).NotTo(HaveOccurred())

		err = s.DeleteBlob(ctx, epoch, "acct", "c", "b", "", DeleteSnapshotsUnset, AccessConditions{})
		Expect(err).To(MatchError(storeerr.ErrSnapshotsPresent))

		err = s.DeleteBlob(ctx, epoch, "acct", "c", "b", "", DeleteSnapshotsInclude, AccessConditions{})
		Expect(err).To(Succeed())

		_, err = s.GetBlobProperties(ctx, epoch, "acct", "c", "b", "", AccessConditions{})
		Expect(err).To(MatchError(storeerr.ErrBlobNotFound))
	})

	It("round-trips a binary content-MD5 through the JSON column", func() {
		sum := codec.Bytes{0xde, 0xad, 0xbe, 0xef}
		_, err := s.CreateBlob(ctx, epoch, "acct", "c", "b", AccessConditions{}, BlockBlob,
			ContentProperties{ContentMD5: sum}, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		got, err := s.GetBlobProperties(ctx, epoch, "acct", "c", "b", "", AccessConditions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ContentProperties.Data.ContentMD5).To(Equal(sum))
	})
})

var _ = Describe("block staging and commit", func() {
	var (
		s   *Store
		ctx = context.Background()
	)

	BeforeEach(func() {
		s = newTestStore()
		_, err := s.CreateContainer(ctx, epoch, "acct", "c")
		Expect(err).NotTo(HaveOccurred())
	})

	It("commits a block list built from mixed sources (S4)", func() {
		_, err := s.StageBlock(ctx, "acct", "c", "b", "A", 5, ChunkRef{StoreID: "x", Offset: 0, Length: 5})
		Expect(err).NotTo(HaveOccurred())
		_, err = s.StageBlock(ctx, "acct", "c", "b", "B", 7, ChunkRef{StoreID: "x", Offset: 5, Length: 7})
		Expect(err).NotTo(HaveOccurred())

		blob, err := s.CommitBlockList(ctx, epoch, "acct", "c", "b", AccessConditions{}, []BlockListEntry{
			{BlockName: "A", CommitType: CommitUncommitted},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(blob.ContentProperties.Data.ContentLength).To(Equal(int64(5)))
		Expect(blob.CommittedBlocksInOrder.Data).To(HaveLen(1))

		_, err = s.StageBlock(ctx, "acct", "c", "b", "B", 7, ChunkRef{StoreID: "x", Offset: 5, Length: 7})
		Expect(err).NotTo(HaveOccurred())

		blob, err = s.CommitBlockList(ctx, epoch.Add(time.Second), "acct", "c", "b", AccessConditions{}, []BlockListEntry{
			{BlockName: "A", CommitType: CommitCommitted},
			{BlockName: "B", CommitType: CommitLatest},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(blob.ContentProperties.Data.ContentLength).To(Equal(int64(12)))
		Expect(blob.CommittedBlocksInOrder.Data).To(HaveLen(2))

		var staged int64
		Expect(s.db.Model(&Block{}).Where("account_name = ? AND container_name = ? AND blob_name = ? AND deleting = 0",
			"acct", "c", "b").Count(&staged).Error).To(Succeed())
		Expect(staged).To(BeZero())
	})

	It("rejects an unknown block name in the commit list", func() {
		_, err := s.CommitBlockList(ctx, epoch, "acct", "c", "b", AccessConditions{}, []BlockListEntry{
			{BlockName: "missing", CommitType: CommitUncommitted},
		})
		Expect(err).To(MatchError(storeerr.ErrInvalidOperation))
	})
})

var _ = Describe("blob leases", func() {
	var (
		s   *Store
		ctx = context.Background()
	)

	BeforeEach(func() {
		s = newTestStore()
		_, err := s.CreateContainer(ctx, epoch, "acct", "c")
		Expect(err).NotTo(HaveOccurred())
		_, err = s.CreateBlob(ctx, epoch, "acct", "c", "b", AccessConditions{}, BlockBlob, ContentProperties{}, nil, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("acquires, renews, and releases a fixed lease (S1)", func() {
		blob, err := s.AcquireBlobLease(ctx, epoch, "acct", "c", "b", "", 30, "L1")
		Expect(err).NotTo(HaveOccurred())
		Expect(blob.Lease.Data.ID).To(Equal("L1"))

		blob, err = s.RenewBlobLease(ctx, epoch.Add(20*time.Second), "acct", "c", "b", "", "L1")
		Expect(err).NotTo(HaveOccurred())
		Expect(blob.Lease.Data.ExpireTime).To(Equal(epoch.Add(50 * time.Second)))

		blob, err = s.ReleaseBlobLease(ctx, epoch.Add(25*time.Second), "acct", "c", "b", "", "L1")
		Expect(err).NotTo(HaveOccurred())
		Expect(blob.Lease.Data.ID).To(BeEmpty())
	})

	It("rejects acquiring a lease on a snapshot row", func() {
		_, err := s.CreateSnapshot(ctx, epoch.Add(time.Second), "acct", "c", "b", AccessConditions{})
		Expect(err).NotTo(HaveOccurred())

		snap := epoch.Add(time.Second).UTC().Format(time.RFC3339Nano)
		_, err = s.AcquireBlobLease(ctx, epoch.Add(2*time.Second), "acct", "c", "b", snap, -1, "")
		Expect(err).To(MatchError(storeerr.ErrBlobSnapshotsPresent))
	})
})

var _ = Describe("service properties and CORS", func() {
	It("round-trips service properties and matches a stored CORS rule", func() {
		s := newTestStore()
		ctx := context.Background()

		svc, err := s.GetServiceProperties(ctx, "acct")
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.AccountName).To(Equal("acct"))

		svc.CORS.Data = []cors.Rule{{
			AllowedOrigins: []string{"https://example.com"},
			AllowedMethods: []string{"GET"},
			AllowedHeaders: []string{"x-ms-*"},
		}}
		_, err = s.SetServiceProperties(ctx, svc)
		Expect(err).NotTo(HaveOccurred())

		rule, ok, err := s.MatchCORS(ctx, "acct", cors.Request{
			Origin:         "https://example.com",
			Method:         "GET",
			RequestHeaders: []string{"x-ms-version"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(rule.AllowedOrigins).To(ContainElement("https://example.com"))
	})
})

var _ = Describe("referenced-extent iterator", func() {
	It("yields the chunks reachable from committed and staged rows", func() {
		s := newTestStore()
		ctx := context.Background()

		_, err := s.CreateContainer(ctx, epoch, "acct", "c")
		Expect(err).NotTo(HaveOccurred())
		_, err = s.CreateBlob(ctx, epoch, "acct", "c", "single-shot", AccessConditions{}, BlockBlob, ContentProperties{}, nil,
			&ChunkRef{StoreID: "x", Offset: 0, Length: 10})
		Expect(err).NotTo(HaveOccurred())
		_, err = s.StageBlock(ctx, "acct", "c", "staged-blob", "A", 5, ChunkRef{StoreID: "y", Offset: 0, Length: 5})
		Expect(err).NotTo(HaveOccurred())

		batches, errc := s.IterateReferencedExtents(ctx, 2000)

		var chunks []ChunkRef
		for b := range batches {
			chunks = append(chunks, b.Chunks...)
		}
		Expect(<-errc).NotTo(HaveOccurred())
		Expect(chunks).To(HaveLen(2))
	})
})
