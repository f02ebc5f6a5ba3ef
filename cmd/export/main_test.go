// Copyright 2020 Google LLC
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
	"net/http/httptest"
	"testing"
	"time"

	"github.com/exposure-notifications/export-engine/internal/database"
	"github.com/exposure-notifications/export-engine/internal/export"
	"github.com/exposure-notifications/export-engine/internal/setup"
	"github.com/exposure-notifications/export-engine/internal/storage"
	"github.com/exposure-notifications/export-engine/pkg/keys"
	"github.com/exposure-notifications/export-engine/pkg/secrets"

	"github.com/sethvargo/go-envconfig"
)

// TestRealMain exercises setup.SetupWith and export.NewServer the same way
// realMain does, then drives the resulting mux directly rather than binding
// a real listener.
func TestRealMain(t *testing.T) {
	t.Parallel()

	_, dbConfig := database.NewTestDatabaseWithConfig(t)

	config := &export.Config{
		Database:      *dbConfig,
		KeyManager:    keys.Config{Type: keys.KeyManagerTypeNoop},
		SecretManager: secrets.Config{Type: "IN_MEMORY", SecretCacheTTL: 10 * time.Minute},
		Storage:       storage.Config{BlobstoreType: storage.BlobstoreTypeNoop},
		MinRecords:    1000,
		MaxRecords:    30000,
		PaddingRange:  100,
	}

	ctx := context.Background()
	env, closer, err := setup.SetupWith(ctx, config, envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatal(err)
	}
	defer closer()

	exportServer, err := export.NewServer(config, env)
	if err != nil {
		t.Fatal(err)
	}

	mux := exportServer.Routes(ctx)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if got, want := rec.Code, 200; got != want {
		t.Errorf("/health: got status %d, want %d", got, want)
	}

	req = httptest.NewRequest("GET", "/debug", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if got, want := rec.Code, 200; got != want {
		t.Errorf("/debug: got status %d, want %d (body: %s)", got, want, rec.Body.String())
	}
}
