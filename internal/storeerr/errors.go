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

// Package storeerr holds the tagged error kinds the metadata store
// surfaces to its callers. Every kind is a comparable sentinel so
// callers can match with errors.Is instead of parsing message text.
package storeerr

import "emperror.dev/errors"

const (
	ErrContainerNotFound      = errors.Sentinel("container not found")
	ErrContainerAlreadyExists = errors.Sentinel("container already exists")
	ErrBlobNotFound           = errors.Sentinel("blob not found")
	ErrBlobArchived           = errors.Sentinel("blob is archived")
	ErrSnapshotsPresent       = errors.Sentinel("snapshots present")
	ErrBlobSnapshotsPresent   = errors.Sentinel("blob has snapshots")
	ErrInvalidOperation       = errors.Sentinel("invalid operation")
	ErrInvalidBlobType        = errors.Sentinel("invalid blob type")
	ErrInvalidLeaseDuration   = errors.Sentinel("invalid lease duration")
	ErrInvalidLeaseBreakPeriod = errors.Sentinel("invalid lease break period")

	ErrLeaseAlreadyPresent              = errors.Sentinel("lease already present")
	ErrLeaseIsBrokenAndCannotBeRenewed  = errors.Sentinel("lease is broken and cannot be renewed")
	ErrLeaseIsBreakingAndCannotBeChanged = errors.Sentinel("lease is breaking and cannot be changed")
	ErrLeaseNotPresent                  = errors.Sentinel("lease not present")
	ErrLeaseIdMissing                   = errors.Sentinel("lease id missing")
	ErrLeaseIdMismatchWithBlobOperation = errors.Sentinel("lease id mismatch with blob operation")
	ErrLeaseIdMismatchWithLeaseOperation = errors.Sentinel("lease id mismatch with lease operation")
	ErrLeaseLost                        = errors.Sentinel("lease lost")
	ErrLeaseIdMismatch                  = errors.Sentinel("lease id mismatch")

	// ErrNotImplemented tags the page-blob, append-blob, copy, and
	// undelete operations the source declares but never implements.
	ErrNotImplemented = errors.Sentinel("not implemented")

	// ErrStoreClosed is returned by any operation called after Close.
	ErrStoreClosed = errors.Sentinel("store is closed")
)
