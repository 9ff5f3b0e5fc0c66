// Copyright 2026 The Keygate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build integration
// +build integration

package mongo_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/internal/oauth2"
	"github.com/keygate/keygate/internal/store/mongo"
	"github.com/keygate/keygate/internal/store/storetest"
)

// TestPurpose: Validates the MongoDB backend against the full storage contract shared by all engines.
// Scope: Database Integration Test
// Security: Unique and sparse indexes standing in for SQL constraints (CWE-384)
// Expected: Every contract subtest passes against a live mongod instance.
func TestMongoStorage_SatisfiesStorageContract(t *testing.T) {
	url := os.Getenv("MONGO_URL")
	if url == "" {
		// Use docker-compose defaults if no URL provided
		url = "mongodb://localhost:27017/keygate_test"
	}

	ctx := context.Background()
	probe, err := mongo.New(ctx, url)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to mongodb: %v", err)
	}
	_ = probe.Close()

	storetest.Run(t, func(t *testing.T) oauth2.Storage {
		s, err := mongo.New(ctx, url)
		require.NoError(t, err)
		return s
	})
}
