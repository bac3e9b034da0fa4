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
	"github.com/azblobemu/metastore/internal/validate"
)

// ListContainers lists containers owned by account, filtered by
// containerName prefix and containerId > marker, ordered ascending,
// capped at maxResults. The returned marker is the last returned
// containerId when the page is full, and 0 when fewer than maxResults
// containers were returned.
func (s *Store) ListContainers(ctx context.Context, now time.Time, accountName, prefix string, maxResults int, marker uint64) ([]Container, uint64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, 0, err
	}

	maxResults = clampMaxResults(maxResults)

	var containers []Container
	q := s.tx(ctx).Where("account_name = ? AND container_id > ?", accountName, marker)
	if prefix != "" {
		q = q.Where("container_name LIKE ?", prefix+"%")
	}
	if err := q.Order("container_id ASC").Limit(maxResults).Find(&containers).Error; err != nil {
		return nil, 0, err
	}

	for i := range containers {
		containers[i].Lease = codec.Of(containers[i].Lease.Data.Project(now))
	}

	var next uint64
	if len(containers) == maxResults {
		next = containers[len(containers)-1].ContainerID
	}
	return containers, next, nil
}

// CreateContainer inserts a new container row owned by accountName.
func (s *Store) CreateContainer(ctx context.Context, now time.Time, accountName, containerName string) (Container, error) {
	if err := s.checkOpen(); err != nil {
		return Container{}, err
	}
	if err := validate.ContainerName(containerName); err != nil {
		return Container{}, err
	}

	c := Container{
		AccountName:   accountName,
		ContainerName: containerName,
		LastModified:  now,
		ETag:          uuid.NewString(),
		Metadata:      codec.Of(map[string]string{}),
		ContainerACL:  codec.Of([]ACLPolicy{}),
		Lease:         codec.Of(lease.New()),
	}

	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return storeerr.ErrContainerAlreadyExists
			}
			return err
		}
		return nil
	})
	return c, err
}

func (s *Store) loadContainer(tx *gorm.DB, accountName, containerName string) (*Container, error) {
	var c Container
	err := tx.Where("account_name = ? AND container_name = ?", accountName, containerName).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storeerr.ErrContainerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CheckContainerExist reports whether the named container exists.
func (s *Store) CheckContainerExist(ctx context.Context, accountName, containerName string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.loadContainer(s.tx(ctx), accountName, containerName)
	return err
}

// GetContainerProperties applies the read gate and returns the
// container with its lease projected against now.
func (s *Store) GetContainerProperties(ctx context.Context, now time.Time, accountName, containerName string, ac AccessConditions) (Container, error) {
	if err := s.checkOpen(); err != nil {
		return Container{}, err
	}
	c, err := s.loadContainer(s.tx(ctx), accountName, containerName)
	if err != nil {
		return Container{}, err
	}
	c.Lease = codec.Of(c.Lease.Data.Project(now))
	if err := lease.CheckRead(c.Lease.Data, ac.LeaseID); err != nil {
		return Container{}, err
	}
	return *c, nil
}

// GetContainerACL returns the container's ACL entries under the same
// read gate as GetContainerProperties.
func (s *Store) GetContainerACL(ctx context.Context, now time.Time, accountName, containerName string, ac AccessConditions) (Container, error) {
	return s.GetContainerProperties(ctx, now, accountName, containerName, ac)
}

// SetContainerMetadata replaces the container's metadata under the
// write gate, bumping lastModified and etag atomically.
func (s *Store) SetContainerMetadata(ctx context.Context, now time.Time, accountName, containerName string, ac AccessConditions, metadata map[string]string) (Container, error) {
	if err := s.checkOpen(); err != nil {
		return Container{}, err
	}

	var out Container
	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.loadContainer(tx, accountName, containerName)
		if err != nil {
			return err
		}
		c.Lease = codec.Of(c.Lease.Data.Project(now))
		if err := lease.CheckWrite(c.Lease.Data, ac.LeaseID); err != nil {
			return err
		}

		c.Metadata = codec.Of(metadata)
		c.LastModified = now
		c.ETag = uuid.NewString()
		c.Lease = codec.Of(lease.CollapseAfterWrite(c.Lease.Data))

		if err := tx.Save(c).Error; err != nil {
			return err
		}
		out = *c
		return nil
	})
	return out, err
}

// SetContainerACL replaces the container's ACL entries and public
// access setting under the write gate.
func (s *Store) SetContainerACL(ctx context.Context, now time.Time, accountName, containerName string, ac AccessConditions, acl []ACLPolicy, publicAccess PublicAccess) (Container, error) {
	if err := s.checkOpen(); err != nil {
		return Container{}, err
	}

	var out Container
	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.loadContainer(tx, accountName, containerName)
		if err != nil {
			return err
		}
		c.Lease = codec.Of(c.Lease.Data.Project(now))
		if err := lease.CheckWrite(c.Lease.Data, ac.LeaseID); err != nil {
			return err
		}

		c.ContainerACL = codec.Of(acl)
		c.PublicAccess = publicAccess
		c.LastModified = now
		c.ETag = uuid.NewString()
		c.Lease = codec.Of(lease.CollapseAfterWrite(c.Lease.Data))

		if err := tx.Save(c).Error; err != nil {
			return err
		}
		out = *c
		return nil
	})
	return out, err
}

// DeleteContainer removes the container row under the write gate and
// soft-deletes every child blob and block row by bumping their
// tombstone generation.
func (s *Store) DeleteContainer(ctx context.Context, now time.Time, accountName, containerName string, ac AccessConditions) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.loadContainer(tx, accountName, containerName)
		if err != nil {
			return err
		}
		c.Lease = codec.Of(c.Lease.Data.Project(now))
		if err := lease.CheckWrite(c.Lease.Data, ac.LeaseID); err != nil {
			return err
		}

		if err := tx.Model(&Blob{}).
			Where("account_name = ? AND container_name = ? AND deleting = 0", accountName, containerName).
			UpdateColumn("deleting", gorm.Expr("deleting + 1")).Error; err != nil {
			return err
		}
		if err := tx.Model(&Block{}).
			Where("account_name = ? AND container_name = ? AND deleting = 0", accountName, containerName).
			UpdateColumn("deleting", gorm.Expr("deleting + 1")).Error; err != nil {
			return err
		}
		return tx.Delete(c).Error
	})
}

func (s *Store) containerLeaseOp(ctx context.Context, accountName, containerName string, op func(c *Container) error) (Container, error) {
	if err := s.checkOpen(); err != nil {
		return Container{}, err
	}

	var out Container
	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.loadContainer(tx, accountName, containerName)
		if err != nil {
			return err
		}
		if err := op(c); err != nil {
			return err
		}
		if err := tx.Save(c).Error; err != nil {
			return err
		}
		out = *c
		return nil
	})
	return out, err
}

// AcquireContainerLease is the container variant of lease.Acquire.
func (s *Store) AcquireContainerLease(ctx context.Context, now time.Time, accountName, containerName string, durationSeconds int, proposedID string) (Container, error) {
	return s.containerLeaseOp(ctx, accountName, containerName, func(c *Container) error {
		projected := c.Lease.Data.Project(now)
		newLease, err := lease.Acquire(projected, now, durationSeconds, proposedID)
		if err != nil {
			return err
		}
		c.Lease = codec.Of(newLease)
		return nil
	})
}

// RenewContainerLease implements the container variant of Renew.
func (s *Store) RenewContainerLease(ctx context.Context, now time.Time, accountName, containerName, leaseID string) (Container, error) {
	return s.containerLeaseOp(ctx, accountName, containerName, func(c *Container) error {
		projected := c.Lease.Data.Project(now)
		newLease, err := lease.Renew(projected, now, leaseID)
		if err != nil {
			return err
		}
		c.Lease = codec.Of(newLease)
		return nil
	})
}

// ChangeContainerLease implements the container variant of Change.
func (s *Store) ChangeContainerLease(ctx context.Context, now time.Time, accountName, containerName, currentID, proposedID string) (Container, error) {
	return s.containerLeaseOp(ctx, accountName, containerName, func(c *Container) error {
		projected := c.Lease.Data.Project(now)
		newLease, err := lease.Change(projected, currentID, proposedID)
		if err != nil {
			return err
		}
		c.Lease = codec.Of(newLease)
		return nil
	})
}

// ReleaseContainerLease implements the container variant of Release.
func (s *Store) ReleaseContainerLease(ctx context.Context, now time.Time, accountName, containerName, leaseID string) (Container, error) {
	return s.containerLeaseOp(ctx, accountName, containerName, func(c *Container) error {
		projected := c.Lease.Data.Project(now)
		newLease, err := lease.Release(projected, leaseID)
		if err != nil {
			return err
		}
		c.Lease = codec.Of(newLease)
		return nil
	})
}

// BreakContainerLease is the container variant of lease.Break. It
// also returns the time remaining until the lease breaks, in seconds.
func (s *Store) BreakContainerLease(ctx context.Context, now time.Time, accountName, containerName string, breakPeriod *int) (Container, int64, error) {
	if err := s.checkOpen(); err != nil {
		return Container{}, 0, err
	}

	var out Container
	var leaseTime int64
	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.loadContainer(tx, accountName, containerName)
		if err != nil {
			return err
		}
		projected := c.Lease.Data.Project(now)
		newLease, lt, err := lease.Break(projected, now, breakPeriod)
		if err != nil {
			return err
		}
		c.Lease = codec.Of(newLease)
		leaseTime = lt
		if err := tx.Save(c).Error; err != nil {
			return err
		}
		out = *c
		return nil
	})
	return out, leaseTime, err
}
