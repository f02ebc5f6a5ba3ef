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

package setup_test

import (
	"context"
	"testing"
	"time"

	"github.com/exposure-notifications/export-engine/internal/database"
	"github.com/exposure-notifications/export-engine/internal/setup"
	"github.com/exposure-notifications/export-engine/internal/storage"
	"github.com/exposure-notifications/export-engine/pkg/keys"
	"github.com/exposure-notifications/export-engine/pkg/secrets"

	"github.com/sethvargo/go-envconfig"
)

var (
	_ setup.BlobstoreConfigProvider     = (*testConfig)(nil)
	_ setup.DatabaseConfigProvider      = (*testConfig)(nil)
	_ setup.KeyManagerConfigProvider    = (*testConfig)(nil)
	_ setup.SecretManagerConfigProvider = (*testConfig)(nil)
)

type testConfig struct {
	Database *database.Config
}

func (t *testConfig) BlobstoreConfig() *storage.Config {
	return &storage.Config{BlobstoreType: storage.BlobstoreTypeNoop}
}

func (t *testConfig) DatabaseConfig() *database.Config {
	return t.Database
}

func (t *testConfig) KeyManagerConfig() *keys.Config {
	return &keys.Config{Type: keys.KeyManagerTypeNoop}
}

func (t *testConfig) SecretManagerConfig() *secrets.Config {
	return &secrets.Config{Type: "IN_MEMORY", SecretCacheTTL: 10 * time.Minute}
}

func newTestConfig(tb testing.TB) *testConfig {
	tb.Helper()
	_, dbConfig := database.NewTestDatabaseWithConfig(tb)
	return &testConfig{Database: dbConfig}
}

func TestSetupWith(t *testing.T) {
	t.Parallel()

	lookuper := envconfig.MapLookuper(map[string]string{})

	t.Run("database", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		config := newTestConfig(t)
		env, closer, err := setup.SetupWith(ctx, config, lookuper)
		if err != nil {
			t.Fatal(err)
		}
		defer closer()

		if env.Database() == nil {
			t.Error("expected database to be installed")
		}
	})

	t.Run("blobstore", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		config := newTestConfig(t)
		env, closer, err := setup.SetupWith(ctx, config, lookuper)
		if err != nil {
			t.Fatal(err)
		}
		defer closer()

		bs := env.Blobstore()
		if bs == nil {
			t.Fatal("expected blobstore to be installed")
		}
		if _, ok := bs.(*storage.Noop); !ok {
			t.Errorf("expected %T to be storage.Noop", bs)
		}
	})

	t.Run("key_manager", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		config := newTestConfig(t)
		env, closer, err := setup.SetupWith(ctx, config, lookuper)
		if err != nil {
			t.Fatal(err)
		}
		defer closer()

		if env.KeyManager() == nil {
			t.Error("expected key manager to be installed")
		}
	})

	t.Run("secret_manager", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		config := newTestConfig(t)
		env, closer, err := setup.SetupWith(ctx, config, lookuper)
		if err != nil {
			t.Fatal(err)
		}
		defer closer()

		sm := env.SecretManager()
		if sm == nil {
			t.Fatal("expected secret manager to be installed")
		}
		if _, ok := sm.(*secrets.Cacher); !ok {
			t.Errorf("expected %T to be secrets.Cacher", sm)
		}
	})
}
