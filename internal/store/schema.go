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

// Package store is the metadata persistence core of the emulated
// blob service. It owns four GORM-mapped entities (Service,
// Container, Blob, Block), the lease state machine wiring, and the
// transactional operations upper layers call.
package store

import (
	"time"

	"github.com/azblobemu/metastore/internal/codec"
	"github.com/azblobemu/metastore/internal/cors"
	"github.com/azblobemu/metastore/internal/lease"
)

// ChunkRef is an opaque persistence chunk reference to bytes the
// extent store owns. The metadata core never dereferences it.
type ChunkRef struct {
	StoreID string `json:"storeId"`
	Offset  int64  `json:"offset"`
	Length  int64  `json:"length"`
}

// BlockRef is one entry of a block blob's committed block list.
type BlockRef struct {
	BlockName   string   `json:"blockName"`
	Size        int64    `json:"size"`
	Persistency ChunkRef `json:"persistency"`
}

type BlobType string

const (
	BlockBlob  BlobType = "BlockBlob"
	PageBlob   BlobType = "PageBlob"
	AppendBlob BlobType = "AppendBlob"
)

type AccessTier string

const (
	TierHot     AccessTier = "Hot"
	TierCool    AccessTier = "Cool"
	TierArchive AccessTier = "Archive"
)

// PublicAccess mirrors the publicAccess mode stored per container.
type PublicAccess string

const (
	PublicAccessNone      PublicAccess = ""
	PublicAccessContainer PublicAccess = "container"
	PublicAccessBlob      PublicAccess = "blob"
)

// ACLPolicy is one signed-access policy entry of a container's ACL.
type ACLPolicy struct {
	ID         string    `json:"id"`
	Start      time.Time `json:"start"`
	Expiry     time.Time `json:"expiry"`
	Permission string    `json:"permission"`
}

// ContentProperties groups the HTTP-ish content attributes carried on
// every blob.
type ContentProperties struct {
	ContentLength      int64       `json:"contentLength"`
	ContentType        string      `json:"contentType"`
	ContentEncoding    string      `json:"contentEncoding"`
	ContentLanguage    string      `json:"contentLanguage"`
	ContentMD5         codec.Bytes `json:"contentMD5"`
	ContentDisposition string      `json:"contentDisposition"`
	CacheControl       string      `json:"cacheControl"`
}

// LoggingConfig, MetricsConfig, StaticWebsiteConfig, and
// DeleteRetentionPolicy are the optional service-property
// sub-documents nested under Service.
type LoggingConfig struct {
	Version string `json:"version"`
	Delete  bool   `json:"delete"`
	Read    bool   `json:"read"`
	Write   bool   `json:"write"`
}

type MetricsConfig struct {
	Version     string `json:"version"`
	Enabled     bool   `json:"enabled"`
	IncludeAPIs bool   `json:"includeAPIs"`
}

type StaticWebsiteConfig struct {
	Enabled           bool   `json:"enabled"`
	IndexDocument     string `json:"indexDocument"`
	ErrorDocument404  string `json:"errorDocument404Path"`
}

type DeleteRetentionPolicy struct {
	Enabled bool `json:"enabled"`
	Days    int  `json:"days"`
}

// Service is the per-account row: created on first set, updated in
// place, never deleted by the core.
type Service struct {
	AccountName           string `gorm:"primaryKey"`
	DefaultServiceVersion string
	CORS                  codec.JSON[[]cors.Rule]             `gorm:"type:text"`
	Logging               codec.JSON[*LoggingConfig]          `gorm:"type:text"`
	HourMetrics           codec.JSON[*MetricsConfig]          `gorm:"type:text"`
	MinuteMetrics         codec.JSON[*MetricsConfig]          `gorm:"type:text"`
	StaticWebsite         codec.JSON[*StaticWebsiteConfig]    `gorm:"type:text"`
	DeleteRetentionPolicy codec.JSON[*DeleteRetentionPolicy]  `gorm:"type:text"`
}

func (Service) TableName() string { return "services" }

// Container is the per-(account, name) row, keyed by the surrogate
// ContainerID used as a list cursor.
type Container struct {
	ContainerID           uint64 `gorm:"primaryKey;autoIncrement"`
	AccountName           string `gorm:"uniqueIndex:idx_container_identity;size:255"`
	ContainerName         string `gorm:"uniqueIndex:idx_container_identity;size:255"`
	LastModified          time.Time
	ETag                  string
	Metadata              codec.JSON[map[string]string] `gorm:"type:text"`
	ContainerACL          codec.JSON[[]ACLPolicy]        `gorm:"type:text"`
	PublicAccess          PublicAccess
	Lease                 codec.JSON[lease.Lease] `gorm:"type:text"`
	HasImmutabilityPolicy bool
	HasLegalHold          bool
}

func (Container) TableName() string { return "containers" }

// Blob is the row keyed by the quintuple (account, container,
// blobName, snapshot, deleting). Snapshot is "" for the live blob;
// Deleting is the tombstone generation, 0 = live.
type Blob struct {
	BlobID                 uint64 `gorm:"primaryKey;autoIncrement"`
	AccountName            string `gorm:"uniqueIndex:idx_blob_identity;size:255"`
	ContainerName          string `gorm:"uniqueIndex:idx_blob_identity;size:255;index:idx_blob_list,priority:1"`
	BlobName               string `gorm:"uniqueIndex:idx_blob_identity;size:1024;index:idx_blob_list,priority:2"`
	Snapshot               string `gorm:"uniqueIndex:idx_blob_identity;size:64"`
	Deleting               uint   `gorm:"uniqueIndex:idx_blob_identity;default:0"`
	BlobType               BlobType
	IsCommitted            bool
	CreationTime           time.Time
	LastModified           time.Time
	ETag                   string
	ContentProperties      codec.JSON[ContentProperties] `gorm:"type:text"`
	AccessTier             AccessTier
	AccessTierInferred     bool
	AccessTierChangeTime   time.Time
	SequenceNumber         int64
	Lease                  codec.JSON[lease.Lease]           `gorm:"type:text"`
	CommittedBlocksInOrder codec.JSON[[]BlockRef]             `gorm:"type:text"`
	Metadata               codec.JSON[map[string]string]     `gorm:"type:text"`
	Persistency            codec.JSON[*ChunkRef]              `gorm:"type:text"`
}

func (Blob) TableName() string { return "blobs" }

// Block is a staged, uncommitted chunk identified by a client-supplied
// blockName. ID is the auto-increment surrogate that gives
// uncommitted block listing a deterministic order.
type Block struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	AccountName   string `gorm:"index:idx_block_identity;size:255"`
	ContainerName string `gorm:"index:idx_block_identity;size:255"`
	BlobName      string `gorm:"index:idx_block_identity;size:1024"`
	BlockName     string `gorm:"index:idx_block_identity;size:1024"`
	Deleting      uint   `gorm:"default:0"`
	Size          int64
	Persistency   codec.JSON[ChunkRef] `gorm:"type:text"`
}

func (Block) TableName() string { return "blocks" }
