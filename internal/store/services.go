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

	"emperror.dev/errors"
	"gorm.io/gorm"

	"github.com/azblobemu/metastore/internal/cors"
)

// GetServiceProperties reads the per-account service properties row,
// created on first set.
func (s *Store) GetServiceProperties(ctx context.Context, accountName string) (Service, error) {
	if err := s.checkOpen(); err != nil {
		return Service{}, err
	}

	var svc Service
	err := s.tx(ctx).Where("account_name = ?", accountName).First(&svc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Service{AccountName: accountName}, nil
	}
	return svc, err
}

// SetServiceProperties creates the service properties row on first
// set and updates it in place thereafter; the core never deletes it.
func (s *Store) SetServiceProperties(ctx context.Context, svc Service) (Service, error) {
	if err := s.checkOpen(); err != nil {
		return Service{}, err
	}

	err := s.tx(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Service
		lookupErr := tx.Where("account_name = ?", svc.AccountName).First(&existing).Error
		switch {
		case errors.Is(lookupErr, gorm.ErrRecordNotFound):
			return tx.Create(&svc).Error
		case lookupErr != nil:
			return lookupErr
		default:
			return tx.Save(&svc).Error
		}
	})
	return svc, err
}

// MatchCORS runs the CORS preflight matcher against the requesting
// account's stored rule set.
func (s *Store) MatchCORS(ctx context.Context, accountName string, req cors.Request) (*cors.Rule, bool, error) {
	svc, err := s.GetServiceProperties(ctx, accountName)
	if err != nil {
		return nil, false, err
	}
	rule, ok := cors.Match(svc.CORS.Data, req)
	return rule, ok, nil
}
