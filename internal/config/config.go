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

// Package config resolves the database connection configuration from
// the environment: AZURITE_DB_USERNAME, AZURITE_DB_PASSWORD,
// AZURITE_DB_NAME, AZURITE_DB_HOSTNAME, AZURITE_DB_DIALECT.
package config

import "github.com/spf13/viper"

// Dialect selects the GORM driver store.Open uses.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)

// DB holds the resolved database connection settings.
type DB struct {
	Username string
	Password string
	Name     string
	Hostname string
	Dialect  Dialect
}

// Load reads AZURITE_DB_* from the environment. An unset
// AZURITE_DB_DIALECT defaults to an in-memory SQLite database, which
// keeps local runs and tests dependency-free.
func Load() DB {
	v := viper.New()
	v.SetEnvPrefix("AZURITE_DB")
	v.AutomaticEnv()
	v.SetDefault("dialect", string(DialectSQLite))
	v.SetDefault("name", "file::memory:?cache=shared")

	return DB{
		Username: v.GetString("username"),
		Password: v.GetString("password"),
		Name:     v.GetString("name"),
		Hostname: v.GetString("hostname"),
		Dialect:  Dialect(v.GetString("dialect")),
	}
}
