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

// Package store selects and constructs a persistence backend from a
// database URL. The scheme picks the driver; the rest of the URL is handed
// to the backend untouched.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/keygate/keygate/internal/oauth2"
	"github.com/keygate/keygate/internal/store/mongo"
	"github.com/keygate/keygate/internal/store/postgres"
	"github.com/keygate/keygate/internal/store/sqlite"
)

// Open connects to the backend named by the URL scheme and wraps it with
// tracing. Supported schemes: postgres, postgresql, sqlite, mongodb,
// mongodb+srv.
//
// Errors never echo the URL itself, which may carry credentials. Only the
// scheme appears in the message.
func Open(ctx context.Context, databaseURL string) (oauth2.Storage, error) {
	scheme, _, ok := strings.Cut(databaseURL, "://")
	if !ok {
		return nil, fmt.Errorf("database URL has no scheme, expected e.g. postgres:// or sqlite://")
	}

	switch scheme {
	case "postgres", "postgresql":
		s, err := postgres.New(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return Observe(s, "postgresql"), nil

	case "sqlite":
		s, err := sqlite.New(ctx, strings.TrimPrefix(databaseURL, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return Observe(s, "sqlite"), nil

	case "mongodb", "mongodb+srv":
		s, err := mongo.New(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return Observe(s, "mongodb"), nil

	default:
		return nil, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}
