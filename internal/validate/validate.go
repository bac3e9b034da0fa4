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

// Package validate holds the name-shape invariants for containers
// and blobs, kept standalone so an HTTP layer can reuse them before
// a request ever reaches the store.
package validate

import "emperror.dev/errors"

const maxContainerNameLength = 63

// ErrContainerNameTooLong is returned by ContainerName when the name
// exceeds the 63-character limit.
var ErrContainerNameTooLong = errors.Sentinel("container name exceeds 63 characters")

// ContainerName checks the container-name length invariant.
// Case-sensitivity and character-set rules are left to the HTTP
// layer; this only enforces what the metadata store itself depends
// on to keep rows addressable.
func ContainerName(name string) error {
	if len(name) > maxContainerNameLength {
		return ErrContainerNameTooLong
	}
	return nil
}
