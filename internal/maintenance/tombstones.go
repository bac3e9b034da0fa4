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

// Package maintenance runs ambient, read-only accounting over the
// metadata store. It never deletes a row: physical sweep of
// tombstoned rows is an external concern.
package maintenance

import (
	"time"

	"github.com/go-co-op/gocron"
	"github.com/go-logr/logr"
	"gorm.io/gorm"
)

var cronExpression = "0 * * * *" // every hour

// Counts holds the tombstone counters TombstoneReporter emits.
type Counts struct {
	TombstonedBlobs  int64
	TombstonedBlocks int64
}

// TombstoneReporter periodically counts tombstoned blob and block rows
// and logs the totals. It never issues a DELETE.
type TombstoneReporter struct {
	DB  *gorm.DB
	Log logr.Logger
}

// Count reads the current tombstone totals without mutating anything.
func (r *TombstoneReporter) Count() (Counts, error) {
	var c Counts
	if err := r.DB.Table("blobs").Where("deleting > 0").Count(&c.TombstonedBlobs).Error; err != nil {
		return Counts{}, err
	}
	if err := r.DB.Table("blocks").Where("deleting > 0").Count(&c.TombstonedBlocks).Error; err != nil {
		return Counts{}, err
	}
	return c, nil
}

// Start schedules the hourly reporting job and returns the running
// scheduler so the caller can stop it on shutdown.
func (r *TombstoneReporter) Start() *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SetMaxConcurrentJobs(1, gocron.WaitMode)

	_, err := s.Cron(cronExpression).Tag("tombstone-report").Do(func() {
		counts, err := r.Count()
		if err != nil {
			r.Log.Error(err, "failed to count tombstoned rows")
			return
		}
		r.Log.Info("tombstone counts", "blobs", counts.TombstonedBlobs, "blocks", counts.TombstonedBlocks)
	})
	if err != nil {
		r.Log.Error(err, "error creating tombstone reporting job")
		return nil
	}

	s.StartAsync()
	return s
}
