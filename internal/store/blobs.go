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
	"time"

	"emperror.dev/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/azblobemu/metastore/internal/codec"
	"github.com/azblobemu/metastore/internal/lease"
	"github.com/azblobemu/metastore/internal/storeerr"
)

// DeleteSnapshotsMode selects the branch of DeleteBlob's error
// policy toward a blob's snapshots.
type DeleteSnapshotsMode string

const (
	DeleteSnapshotsUnset   DeleteSnapshotsMode = ""
	DeleteSnapshotsInclude DeleteSnapshotsMode = "Include"
	DeleteSnapshotsOnly    DeleteSnapshotsMode = "Only"
)

func (s *Store) loadLiveBlob(tx *gorm.DB, accountName, containerName, blobName, snapshot string) (*Blob, error) {
	var b Blob
	err := tx.Where("account_name = ? AND container_name = ? AND blob_name = ? AND snapshot = ? AND deleting = 0",
		accountName, containerName, blobName, snapshot).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storeerr.ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBlob creates or overwrites the live blob row.
func (s *Store) CreateBlob(ctx context.Context, now time.Time, accountName, containerName, blobName string, ac AccessConditions, blobType BlobType, props ContentProperties, metadata map[string]string, persistency *ChunkRef) (Blob, error) {
	if err := s.checkOpen(); err != nil {
		return Blob{}, err
	}

	var out Blob
	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadContainer(tx, accountName, containerName); err != nil {
			return err
		}

		existing, err := s.loadLiveBlob(tx, accountName, containerName, blobName, "")
		if err != nil && !errors.Is(err, storeerr.ErrBlobNotFound) {
			return err
		}

		b := Blob{
			AccountName:       accountName,
			ContainerName:     containerName,
			BlobName:          blobName,
			BlobType:          blobType,
			IsCommitted:       true,
			CreationTime:      now,
			LastModified:      now,
			ETag:              uuid.NewString(),
			ContentProperties: codec.Of(props),
			AccessTier:        TierHot,
			Metadata:          codec.Of(metadata),
			Persistency:       codec.Of(persistency),
			Lease:             codec.Of(lease.New()),
		}

		if existing != nil {
			projected := existing.Lease.Data.Project(now)
			if err := lease.CheckWrite(projected, ac.LeaseID); err != nil {
				return err
			}
			if existing.AccessTier == TierArchive {
				return storeerr.ErrBlobArchived
			}
			b.BlobID = existing.BlobID
			b.Lease = codec.Of(lease.CollapseAfterWrite(projected))
			if err := tx.Save(&b).Error; err != nil {
				return err
			}
		} else if err := tx.Create(&b).Error; err != nil {
			return err
		}

		out = b
		return nil
	})
	return out, err
}

// DownloadBlob returns the blob (or snapshot) row under the read
// gate.
func (s *Store) DownloadBlob(ctx context.Context, now time.Time, accountName, containerName, blobName, snapshot string, ac AccessConditions) (Blob, error) {
	return s.GetBlobProperties(ctx, now, accountName, containerName, blobName, snapshot, ac)
}

// GetBlobProperties returns the blob (or snapshot) row's properties
// under the read gate, with its lease projected against now.
func (s *Store) GetBlobProperties(ctx context.Context, now time.Time, accountName, containerName, blobName, snapshot string, ac AccessConditions) (Blob, error) {
	if err := s.checkOpen(); err != nil {
		return Blob{}, err
	}
	b, err := s.loadLiveBlob(s.tx(ctx), accountName, containerName, blobName, snapshot)
	if err != nil {
		return Blob{}, err
	}
	b.Lease = codec.Of(b.Lease.Data.Project(now))
	if err := lease.CheckRead(b.Lease.Data, ac.LeaseID); err != nil {
		return Blob{}, err
	}
	return *b, nil
}

// GetBlobType is a pure lookup of the blob's type with no lease
// evaluation.
func (s *Store) GetBlobType(ctx context.Context, accountName, containerName, blobName, snapshot string) (BlobType, bool, error) {
	if err := s.checkOpen(); err != nil {
		return "", false, err
	}
	b, err := s.loadLiveBlob(s.tx(ctx), accountName, containerName, blobName, snapshot)
	if err != nil {
		return "", false, err
	}
	return b.BlobType, b.IsCommitted, nil
}

// ListBlobs lists blobs within one container, filtered by blob-name
// prefix or blobName > marker, excluding tombstoned rows and, unless
// requested, snapshots. The
// continuation cursor is computed by over-fetching one extra row.
func (s *Store) ListBlobs(ctx context.Context, accountName, containerName, prefix, marker string, maxResults int, includeSnapshots bool) ([]Blob, string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, "", err
	}

	maxResults = clampMaxResults(maxResults)

	q := s.tx(ctx).Where("account_name = ? AND container_name = ? AND deleting = 0", accountName, containerName)
	if !includeSnapshots {
		q = q.Where("snapshot = ?", "")
	}
	if prefix != "" {
		q = q.Where("blob_name LIKE ?", prefix+"%")
	}
	if marker != "" {
		q = q.Where("blob_name > ?", marker)
	}

	var blobs []Blob
	if err := q.Order("blob_name ASC").Limit(maxResults + 1).Find(&blobs).Error; err != nil {
		return nil, "", err
	}

	var next string
	if len(blobs) > maxResults {
		next = blobs[maxResults-1].BlobName
		blobs = blobs[:maxResults]
	}
	return blobs, next, nil
}

// ListAllBlobs scans across accounts and containers for the
// referenced-extent iterator.
func (s *Store) ListAllBlobs(ctx context.Context, marker uint64, pageSize int) ([]Blob, uint64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, 0, err
	}

	pageSize = clampMaxResults(pageSize)

	var blobs []Blob
	if err := s.tx(ctx).Where("blob_id > ? AND deleting = 0", marker).
		Order("blob_id ASC").Limit(pageSize).Find(&blobs).Error; err != nil {
		return nil, 0, err
	}

	var next uint64
	if len(blobs) == pageSize {
		next = blobs[len(blobs)-1].BlobID
	}
	return blobs, next, nil
}

// SetBlobHTTPHeaders replaces the blob's content properties under
// the write gate.
func (s *Store) SetBlobHTTPHeaders(ctx context.Context, now time.Time, accountName, containerName, blobName string, ac AccessConditions, props ContentProperties) (Blob, error) {
	if err := s.checkOpen(); err != nil {
		return Blob{}, err
	}

	var out Blob
	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.loadLiveBlob(tx, accountName, containerName, blobName, "")
		if err != nil {
			return err
		}
		b.Lease = codec.Of(b.Lease.Data.Project(now))
		if err := lease.CheckWrite(b.Lease.Data, ac.LeaseID); err != nil {
			return err
		}

		b.ContentProperties = codec.Of(props)
		b.ETag = uuid.NewString()
		b.LastModified = now
		b.Lease = codec.Of(lease.CollapseAfterWrite(b.Lease.Data))

		if err := tx.Save(b).Error; err != nil {
			return err
		}
		out = *b
		return nil
	})
	return out, err
}

// SetBlobMetadata replaces the blob's metadata under the write gate.
func (s *Store) SetBlobMetadata(ctx context.Context, now time.Time, accountName, containerName, blobName string, ac AccessConditions, metadata map[string]string) (Blob, error) {
	if err := s.checkOpen(); err != nil {
		return Blob{}, err
	}

	var out Blob
	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.loadLiveBlob(tx, accountName, containerName, blobName, "")
		if err != nil {
			return err
		}
		b.Lease = codec.Of(b.Lease.Data.Project(now))
		if err := lease.CheckWrite(b.Lease.Data, ac.LeaseID); err != nil {
			return err
		}

		b.Metadata = codec.Of(metadata)
		b.ETag = uuid.NewString()
		b.LastModified = now
		b.Lease = codec.Of(lease.CollapseAfterWrite(b.Lease.Data))

		if err := tx.Save(b).Error; err != nil {
			return err
		}
		out = *b
		return nil
	})
	return out, err
}

// CreateSnapshot clones the live row under the read gate, using the
// request timestamp as the snapshot identifier and clearing lease
// fields on the clone.
func (s *Store) CreateSnapshot(ctx context.Context, now time.Time, accountName, containerName, blobName string, ac AccessConditions) (Blob, error) {
	if err := s.checkOpen(); err != nil {
		return Blob{}, err
	}

	var out Blob
	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.loadLiveBlob(tx, accountName, containerName, blobName, "")
		if err != nil {
			return err
		}
		b.Lease = codec.Of(b.Lease.Data.Project(now))
		if err := lease.CheckRead(b.Lease.Data, ac.LeaseID); err != nil {
			return err
		}

		snap := *b
		snap.BlobID = 0
		snap.Snapshot = now.UTC().Format(time.RFC3339Nano)
		snap.ETag = uuid.NewString()
		snap.Lease = codec.Of(lease.New())

		if err := tx.Create(&snap).Error; err != nil {
			return err
		}
		out = snap
		return nil
	})
	return out, err
}

// DeleteBlob branches on whether the target is the base blob or a
// snapshot and on the caller's deleteSnapshots mode.
func (s *Store) DeleteBlob(ctx context.Context, now time.Time, accountName, containerName, blobName, snapshot string, mode DeleteSnapshotsMode, ac AccessConditions) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadContainer(tx, accountName, containerName); err != nil {
			return err
		}

		target, err := s.loadLiveBlob(tx, accountName, containerName, blobName, snapshot)
		if err != nil {
			return err
		}

		isBase := snapshot == ""
		if isBase {
			target.Lease = codec.Of(target.Lease.Data.Project(now))
			if err := lease.CheckWrite(target.Lease.Data, ac.LeaseID); err != nil {
				return err
			}
		} else if mode != DeleteSnapshotsUnset {
			return storeerr.ErrInvalidOperation
		}

		if !isBase {
			return s.tombstoneBlob(tx, target)
		}

		var snapCount int64
		if err := tx.Model(&Blob{}).
			Where("account_name = ? AND container_name = ? AND blob_name = ? AND snapshot <> '' AND deleting = 0",
				accountName, containerName, blobName).
			Count(&snapCount).Error; err != nil {
			return err
		}

		switch mode {
		case DeleteSnapshotsUnset:
			if snapCount > 0 {
				return storeerr.ErrSnapshotsPresent
			}
			return s.tombstoneBlobAndBlocks(tx, target)
		case DeleteSnapshotsOnly:
			return s.tombstoneSnapshots(tx, accountName, containerName, blobName)
		case DeleteSnapshotsInclude:
			if err := s.tombstoneSnapshots(tx, accountName, containerName, blobName); err != nil {
				return err
			}
			return s.tombstoneBlobAndBlocks(tx, target)
		default:
			return storeerr.ErrInvalidOperation
		}
	})
}

func (s *Store) tombstoneBlob(tx *gorm.DB, b *Blob) error {
	return tx.Model(&Blob{}).Where("blob_id = ?", b.BlobID).
		UpdateColumn("deleting", gorm.Expr("deleting + 1")).Error
}

func (s *Store) tombstoneBlobAndBlocks(tx *gorm.DB, b *Blob) error {
	if err := tx.Model(&Block{}).
		Where("account_name = ? AND container_name = ? AND blob_name = ? AND deleting = 0",
			b.AccountName, b.ContainerName, b.BlobName).
		UpdateColumn("deleting", gorm.Expr("deleting + 1")).Error; err != nil {
		return err
	}
	return s.tombstoneBlob(tx, b)
}

func (s *Store) tombstoneSnapshots(tx *gorm.DB, accountName, containerName, blobName string) error {
	return tx.Model(&Blob{}).
		Where("account_name = ? AND container_name = ? AND blob_name = ? AND snapshot <> '' AND deleting = 0",
			accountName, containerName, blobName).
		UpdateColumn("deleting", gorm.Expr("deleting + 1")).Error
}

// SetTier changes the blob's access tier. The returned bool reports
// whether the transition is an Archive-rehydration (status 202
// upstream) rather than an immediate one (status 200).
func (s *Store) SetTier(ctx context.Context, now time.Time, accountName, containerName, blobName string, ac AccessConditions, tier AccessTier) (Blob, bool, error) {
	if err := s.checkOpen(); err != nil {
		return Blob{}, false, err
	}

	if tier != TierHot && tier != TierCool && tier != TierArchive {
		return Blob{}, false, storeerr.ErrInvalidBlobType
	}

	var out Blob
	var rehydrating bool
	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.loadLiveBlob(tx, accountName, containerName, blobName, "")
		if err != nil {
			return err
		}
		if b.Snapshot != "" {
			return storeerr.ErrBlobSnapshotsPresent
		}
		if b.BlobType != BlockBlob {
			return storeerr.ErrInvalidBlobType
		}

		b.Lease = codec.Of(b.Lease.Data.Project(now))
		if err := lease.CheckWrite(b.Lease.Data, ac.LeaseID); err != nil {
			return err
		}

		rehydrating = b.AccessTier == TierArchive && tier != TierArchive
		b.AccessTier = tier
		b.AccessTierInferred = false
		b.AccessTierChangeTime = now
		b.Lease = codec.Of(lease.CollapseAfterWrite(b.Lease.Data))

		if err := tx.Save(b).Error; err != nil {
			return err
		}
		out = *b
		return nil
	})
	return out, rehydrating, err
}

func (s *Store) blobLeaseOp(ctx context.Context, accountName, containerName, blobName, snapshot string, op func(b *Blob) error) (Blob, error) {
	if err := s.checkOpen(); err != nil {
		return Blob{}, err
	}

	var out Blob
	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.loadLiveBlob(tx, accountName, containerName, blobName, snapshot)
		if err != nil {
			return err
		}
		if err := op(b); err != nil {
			return err
		}
		if err := tx.Save(b).Error; err != nil {
			return err
		}
		out = *b
		return nil
	})
	return out, err
}

// AcquireBlobLease is the blob variant of lease.Acquire. Acquiring a
// lease on a snapshot row is rejected.
func (s *Store) AcquireBlobLease(ctx context.Context, now time.Time, accountName, containerName, blobName, snapshot string, durationSeconds int, proposedID string) (Blob, error) {
	return s.blobLeaseOp(ctx, accountName, containerName, blobName, snapshot, func(b *Blob) error {
		if b.Snapshot != "" {
			return storeerr.ErrBlobSnapshotsPresent
		}
		projected := b.Lease.Data.Project(now)
		newLease, err := lease.Acquire(projected, now, durationSeconds, proposedID)
		if err != nil {
			return err
		}
		b.Lease = codec.Of(newLease)
		return nil
	})
}

// RenewBlobLease implements the blob variant of Renew.
func (s *Store) RenewBlobLease(ctx context.Context, now time.Time, accountName, containerName, blobName, snapshot, leaseID string) (Blob, error) {
	return s.blobLeaseOp(ctx, accountName, containerName, blobName, snapshot, func(b *Blob) error {
		projected := b.Lease.Data.Project(now)
		newLease, err := lease.Renew(projected, now, leaseID)
		if err != nil {
			return err
		}
		b.Lease = codec.Of(newLease)
		return nil
	})
}

// ChangeBlobLease implements the blob variant of Change.
func (s *Store) ChangeBlobLease(ctx context.Context, now time.Time, accountName, containerName, blobName, snapshot, currentID, proposedID string) (Blob, error) {
	return s.blobLeaseOp(ctx, accountName, containerName, blobName, snapshot, func(b *Blob) error {
		projected := b.Lease.Data.Project(now)
		newLease, err := lease.Change(projected, currentID, proposedID)
		if err != nil {
			return err
		}
		b.Lease = codec.Of(newLease)
		return nil
	})
}

// ReleaseBlobLease implements the blob variant of Release.
func (s *Store) ReleaseBlobLease(ctx context.Context, now time.Time, accountName, containerName, blobName, snapshot, leaseID string) (Blob, error) {
	return s.blobLeaseOp(ctx, accountName, containerName, blobName, snapshot, func(b *Blob) error {
		projected := b.Lease.Data.Project(now)
		newLease, err := lease.Release(projected, leaseID)
		if err != nil {
			return err
		}
		b.Lease = codec.Of(newLease)
		return nil
	})
}

// BreakBlobLease implements the blob variant of Break.
func (s *Store) BreakBlobLease(ctx context.Context, now time.Time, accountName, containerName, blobName, snapshot string, breakPeriod *int) (Blob, int64, error) {
	if err := s.checkOpen(); err != nil {
		return Blob{}, 0, err
	}

	var out Blob
	var leaseTime int64
	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.loadLiveBlob(tx, accountName, containerName, blobName, snapshot)
		if err != nil {
			return err
		}
		projected := b.Lease.Data.Project(now)
		newLease, lt, err := lease.Break(projected, now, breakPeriod)
		if err != nil {
			return err
		}
		b.Lease = codec.Of(newLease)
		leaseTime = lt
		if err := tx.Save(b).Error; err != nil {
			return err
		}
		out = *b
		return nil
	})
	return out, leaseTime, err
}
