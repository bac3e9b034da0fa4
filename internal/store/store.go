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
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/go-logr/logr"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/azblobemu/metastore/internal/config"
	"github.com/azblobemu/metastore/internal/storeerr"
)

// Store is the metadata persistence core of the emulated blob
// service. It owns the database connection and every transactional
// operation against services, containers, blobs, and blocks.
type Store struct {
	db     *gorm.DB
	log    logr.Logger
	closed atomic.Bool
}

func dialector(cfg config.DB) gorm.Dialector {
	switch cfg.Dialect {
	case config.DialectMySQL:
		dsn := cfg.Username + ":" + cfg.Password + "@tcp(" + cfg.Hostname + ")/" + cfg.Name + "?parseTime=true"
		return mysql.Open(dsn)
	case config.DialectPostgres:
		dsn := "host=" + cfg.Hostname + " user=" + cfg.Username + " password=" + cfg.Password + " dbname=" + cfg.Name + " sslmode=disable"
		return postgres.Open(dsn)
	default:
		return sqlite.Open(cfg.Name)
	}
}

// Open establishes the database connection named by cfg, retries the
// initial ping against transient connection failures, and runs every
// pending migration. This is the process-wide init() the store
// performs once; calling it again against an already-migrated
// database is a no-op.
func Open(ctx context.Context, cfg config.DB, log logr.Logger) (*Store, error) {
	db, err := gorm.Open(dialector(cfg), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	err = retry.Do(
		func() error { return sqlDB.PingContext(ctx) },
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(200*time.Millisecond),
		retry.OnRetry(func(n uint, pingErr error) {
			log.Info("retrying database connection", "attempt", n, "error", pingErr.Error())
		}),
	)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return &Store{db: db, log: log}, nil
}

// Close drains the connection pool and marks the store closed.
// Subsequent operation calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) tx(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// DB exposes the underlying connection for ambient concerns — the
// tombstone reporter and the CLI's stats command — that read store
// state without going through a domain operation.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return storeerr.ErrStoreClosed
	}
	return nil
}
