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

// CommitType selects which pool CommitBlockList resolves a block name
// against.
type CommitType string

const (
	CommitUncommitted CommitType = "Uncommitted"
	CommitCommitted   CommitType = "Committed"
	CommitLatest       CommitType = "Latest"
)

// BlockListEntry is one (blockName, commitType) pair of a
// commitBlockList request.
type BlockListEntry struct {
	BlockName  string
	CommitType CommitType
}

// StageBlock upserts a staged block by (account, container, blob,
// blockName).
func (s *Store) StageBlock(ctx context.Context, accountName, containerName, blobName, blockName string, size int64, persistency ChunkRef) (Block, error) {
	if err := s.checkOpen(); err != nil {
		return Block{}, err
	}

	var out Block
	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadContainer(tx, accountName, containerName); err != nil {
			return err
		}

		var existing Block
		err := tx.Where("account_name = ? AND container_name = ? AND blob_name = ? AND block_name = ? AND deleting = 0",
			accountName, containerName, blobName, blockName).First(&existing).Error

		blk := Block{
			AccountName:   accountName,
			ContainerName: containerName,
			BlobName:      blobName,
			BlockName:     blockName,
			Size:          size,
			Persistency:   codec.Of(persistency),
		}

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&blk).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			blk.ID = existing.ID
			if err := tx.Save(&blk).Error; err != nil {
				return err
			}
		}
		out = blk
		return nil
	})
	return out, err
}

// BlockList is the committed/uncommitted pair getBlockList returns.
type BlockList struct {
	Committed   []BlockRef
	Uncommitted []Block
}

// GetBlockList returns the blob's committed and/or uncommitted block
// lists.
func (s *Store) GetBlockList(ctx context.Context, now time.Time, accountName, containerName, blobName string, ac AccessConditions, wantCommitted, wantUncommitted bool) (BlockList, error) {
	if err := s.checkOpen(); err != nil {
		return BlockList{}, err
	}

	var out BlockList
	if wantCommitted {
		b, err := s.loadLiveBlob(s.tx(ctx), accountName, containerName, blobName, "")
		if err != nil {
			return BlockList{}, err
		}
		b.Lease = codec.Of(b.Lease.Data.Project(now))
		if err := lease.CheckRead(b.Lease.Data, ac.LeaseID); err != nil {
			return BlockList{}, err
		}
		out.Committed = b.CommittedBlocksInOrder.Data
	}

	if wantUncommitted {
		var blocks []Block
		if err := s.tx(ctx).Where("account_name = ? AND container_name = ? AND blob_name = ? AND deleting = 0",
			accountName, containerName, blobName).Order("id ASC").Find(&blocks).Error; err != nil {
			return BlockList{}, err
		}
		out.Uncommitted = blocks
	}

	return out, nil
}

// CommitBlockList resolves each entry against the committed or
// staged pool and writes the blob's new committed block list.
func (s *Store) CommitBlockList(ctx context.Context, now time.Time, accountName, containerName, blobName string, ac AccessConditions, entries []BlockListEntry) (Blob, error) {
	if err := s.checkOpen(); err != nil {
		return Blob{}, err
	}

	var out Blob
	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadContainer(tx, accountName, containerName); err != nil {
			return err
		}

		existing, err := s.loadLiveBlob(tx, accountName, containerName, blobName, "")
		hasExisting := err == nil
		if err != nil && !errors.Is(err, storeerr.ErrBlobNotFound) {
			return err
		}

		committed := map[string]BlockRef{}
		if hasExisting {
			existing.Lease = codec.Of(existing.Lease.Data.Project(now))
			if err := lease.CheckWrite(existing.Lease.Data, ac.LeaseID); err != nil {
				return err
			}
			for _, ref := range existing.CommittedBlocksInOrder.Data {
				committed[ref.BlockName] = ref
			}
		}

		var staged []Block
		if err := tx.Where("account_name = ? AND container_name = ? AND blob_name = ? AND deleting = 0",
			accountName, containerName, blobName).Find(&staged).Error; err != nil {
			return err
		}
		uncommitted := map[string]Block{}
		for _, blk := range staged {
			uncommitted[blk.BlockName] = blk
		}

		selected := make([]BlockRef, 0, len(entries))
		var total int64
		for _, e := range entries {
			var ref BlockRef
			switch e.CommitType {
			case CommitUncommitted:
				blk, ok := uncommitted[e.BlockName]
				if !ok {
					return storeerr.ErrInvalidOperation
				}
				ref = BlockRef{BlockName: blk.BlockName, Size: blk.Size, Persistency: blk.Persistency.Data}
			case CommitCommitted:
				r, ok := committed[e.BlockName]
				if !ok {
					return storeerr.ErrInvalidOperation
				}
				ref = r
			case CommitLatest:
				if blk, ok := uncommitted[e.BlockName]; ok {
					ref = BlockRef{BlockName: blk.BlockName, Size: blk.Size, Persistency: blk.Persistency.Data}
				} else if r, ok := committed[e.BlockName]; ok {
					ref = r
				} else {
					return storeerr.ErrInvalidOperation
				}
			default:
				return storeerr.ErrInvalidOperation
			}
			selected = append(selected, ref)
			total += ref.Size
		}

		b := Blob{
			AccountName:            accountName,
			ContainerName:          containerName,
			BlobName:               blobName,
			BlobType:               BlockBlob,
			IsCommitted:            true,
			CreationTime:           now,
			LastModified:           now,
			ETag:                   uuid.NewString(),
			AccessTier:             TierHot,
			CommittedBlocksInOrder: codec.Of(selected),
			ContentProperties:      codec.Of(ContentProperties{ContentLength: total}),
			Lease:                  codec.Of(lease.New()),
		}

		if hasExisting {
			b.BlobID = existing.BlobID
			b.CreationTime = existing.CreationTime
			b.Metadata = existing.Metadata
			b.ContentProperties.Data.ContentType = existing.ContentProperties.Data.ContentType
			b.Lease = codec.Of(lease.CollapseAfterWrite(existing.Lease.Data))
		}

		if err := tx.Save(&b).Error; err != nil {
			return err
		}

		if len(staged) > 0 {
			if err := tx.Model(&Block{}).
				Where("account_name = ? AND container_name = ? AND blob_name = ? AND deleting = 0",
					accountName, containerName, blobName).
				UpdateColumn("deleting", gorm.Expr("deleting + 1")).Error; err != nil {
				return err
			}
		}

		out = b
		return nil
	})
	return out, err
}
