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

	"golang.org/x/sync/errgroup"
)

// ChunkBatch is one page of opaque persistence chunks yielded by
// IterateReferencedExtents.
type ChunkBatch struct {
	Chunks []ChunkRef
}

// IterateReferencedExtents is a lazy, finite, single-pass sequence of
// chunk batches reachable from live metadata, for an external garbage
// collector to cross-check before deleting anything. The committed-blob
// scan and the uncommitted-block scan run concurrently, each issuing
// its own paged queries outside any transaction, and interleave their
// batches onto the returned channel as they complete. Cancelling ctx
// stops both scans.
func (s *Store) IterateReferencedExtents(ctx context.Context, pageSize int) (<-chan ChunkBatch, <-chan error) {
	pageSize = clampMaxResults(pageSize)

	out := make(chan ChunkBatch)
	errc := make(chan error, 1)

	if err := s.checkOpen(); err != nil {
		close(out)
		errc <- err
		close(errc)
		return out, errc
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.scanBlobExtents(gctx, pageSize, out) })
	g.Go(func() error { return s.scanBlockExtents(gctx, pageSize, out) })

	go func() {
		defer close(out)
		errc <- g.Wait()
		close(errc)
	}()

	return out, errc
}

func (s *Store) scanBlobExtents(ctx context.Context, pageSize int, out chan<- ChunkBatch) error {
	var marker uint64
	for {
		var blobs []Blob
		if err := s.tx(ctx).Where("blob_id > ? AND deleting = 0", marker).
			Order("blob_id ASC").Limit(pageSize).Find(&blobs).Error; err != nil {
			return err
		}
		if len(blobs) == 0 {
			return nil
		}

		var batch []ChunkRef
		for _, b := range blobs {
			if b.Persistency.Data != nil {
				batch = append(batch, *b.Persistency.Data)
			}
			for _, ref := range b.CommittedBlocksInOrder.Data {
				batch = append(batch, ref.Persistency)
			}
		}
		if len(batch) > 0 {
			select {
			case out <- ChunkBatch{Chunks: batch}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		marker = blobs[len(blobs)-1].BlobID
		if len(blobs) < pageSize {
			return nil
		}
	}
}

func (s *Store) scanBlockExtents(ctx context.Context, pageSize int, out chan<- ChunkBatch) error {
	var marker uint64
	for {
		var blocks []Block
		if err := s.tx(ctx).Where("id > ? AND deleting = 0", marker).
			Order("id ASC").Limit(pageSize).Find(&blocks).Error; err != nil {
			return err
		}
		if len(blocks) == 0 {
			return nil
		}

		batch := make([]ChunkRef, 0, len(blocks))
		for _, blk := range blocks {
			batch = append(batch, blk.Persistency.Data)
		}
		select {
		case out <- ChunkBatch{Chunks: batch}:
		case <-ctx.Done():
			return ctx.Err()
		}

		marker = blocks[len(blocks)-1].ID
		if len(blocks) < pageSize {
			return nil
		}
	}
}
