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

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/azblobemu/metastore/internal/logging"
	"github.com/azblobemu/metastore/internal/maintenance"
	"github.com/azblobemu/metastore/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report current tombstone counts without deleting anything.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := logging.New(verbose)
		if err != nil {
			return err
		}

		st, err := store.Open(context.Background(), dbCfg, log)
		if err != nil {
			return err
		}
		defer st.Close()

		reporter := &maintenance.TombstoneReporter{DB: st.DB(), Log: log}
		counts, err := reporter.Count()
		if err != nil {
			return err
		}

		fmt.Printf("tombstoned blobs: %d\ntombstoned blocks: %d\n", counts.TombstonedBlobs, counts.TombstonedBlocks)
		return nil
	},
}
