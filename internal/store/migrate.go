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
	gormigrate "github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

var migrations = []*gormigrate.Migration{
	{
		ID: "202401010000",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&Service{}, &Container{}, &Blob{}, &Block{})
		},
		Rollback: func(tx *gorm.DB) error {
			if err := tx.Migrator().DropTable("blocks"); err != nil {
				return err
			}
			if err := tx.Migrator().DropTable("blobs"); err != nil {
				return err
			}
			if err := tx.Migrator().DropTable("containers"); err != nil {
				return err
			}
			return tx.Migrator().DropTable("services")
		},
	},
}

func migrator(db *gorm.DB) *gormigrate.Gormigrate {
	return gormigrate.New(db, gormigrate.DefaultOptions, migrations)
}

// Migrate runs every pending schema migration. It is safe to call on
// every process start: already-applied migrations are skipped.
func Migrate(db *gorm.DB) error {
	return migrator(db).Migrate()
}
