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

// Package codec implements the JSON encoding the metadata store uses
// for its nested, denormalized columns: metadata maps, ACL entries,
// committed-block lists, content properties, and the various
// service-property sub-documents.
package codec

import (
	"database/sql/driver"
	"encoding/json"

	"emperror.dev/errors"
)

// JSON is a generic gorm.Valuer/Scanner for any JSON-serializable
// value, used as the column type for nested structures kept as a
// denormalized simplification rather than their own tables.
type JSON[T any] struct {
	Data T
}

func Of[T any](v T) JSON[T] {
	return JSON[T]{Data: v}
}

func (j JSON[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.Data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal json column")
	}
	return string(b), nil
}

func (j *JSON[T]) Scan(src interface{}) error {
	if src == nil {
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.Errorf("unsupported json column source type %T", src)
	}

	if len(raw) == 0 {
		return nil
	}

	return json.Unmarshal(raw, &j.Data)
}

// bufferShape mirrors the {"type":"Buffer","data":[...]} encoding
// raw byte fields must round-trip through. Data is []int rather than
// []byte so json.Marshal emits a literal array of integers instead of
// base64-encoding it into a JSON string, matching what a Node.js
// JSON.stringify(Buffer) actually produces.
type bufferShape struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

// EncodeBytes marshals a byte slice using the Buffer convention. It
// always emits the Buffer shape; DecodeBytes reads that shape back as
// well as the plain object-with-numeric-keys shape.
func EncodeBytes(b []byte) ([]byte, error) {
	data := make([]int, len(b))
	for i, v := range b {
		data[i] = int(v)
	}
	return json.Marshal(bufferShape{Type: "Buffer", Data: data})
}

// DecodeBytes restores a []byte encoded either as the Buffer shape or
// as an object whose keys are the stringified byte indices.
func DecodeBytes(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var buf bufferShape
	if err := json.Unmarshal(raw, &buf); err == nil && buf.Type == "Buffer" {
		out := make([]byte, len(buf.Data))
		for i, v := range buf.Data {
			out[i] = byte(v)
		}
		return out, nil
	}

	var numeric map[string]byte
	if err := json.Unmarshal(raw, &numeric); err != nil {
		return nil, errors.Wrap(err, "failed to decode buffer-shaped bytes")
	}

	out := make([]byte, len(numeric))
	for k, v := range numeric {
		idx, err := parseIndex(k)
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(out) {
			return nil, errors.Errorf("buffer index %d out of range", idx)
		}
		out[idx] = v
	}
	return out, nil
}

// Bytes is a raw byte slice that marshals through the Buffer
// convention instead of Go's default base64 string encoding, for
// JSON-column fields that must round-trip the way the rest of the
// Buffer-shaped data in this store does.
type Bytes []byte

func (b Bytes) MarshalJSON() ([]byte, error) {
	return EncodeBytes(b)
}

func (b *Bytes) UnmarshalJSON(raw []byte) error {
	decoded, err := DecodeBytes(raw)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

func parseIndex(s string) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errors.Errorf("invalid numeric buffer key %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
