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

// Package setup provides common initialization code shared by every binary
// in this module: load configuration from the environment, resolve secret
// references, and bind the backends requested by that configuration into a
// serverenv.ServerEnv.
package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/exposure-notifications/export-engine/internal/database"
	"github.com/exposure-notifications/export-engine/internal/serverenv"
	"github.com/exposure-notifications/export-engine/internal/storage"
	"github.com/exposure-notifications/export-engine/pkg/keys"
	"github.com/exposure-notifications/export-engine/pkg/logging"
	"github.com/exposure-notifications/export-engine/pkg/observability"
	"github.com/exposure-notifications/export-engine/pkg/secrets"

	"github.com/sethvargo/go-envconfig"
)

// defaultSecretCacheTTL is used if a config's secrets.Config does not specify
// one.
const defaultSecretCacheTTL = 5 * time.Minute

// DatabaseConfigProvider is implemented by any config that embeds a
// database.Config; every binary in this module talks to the same database.
type DatabaseConfigProvider interface {
	DatabaseConfig() *database.Config
}

// BlobstoreConfigProvider signals that the config knows how to select and
// configure a storage.Blobstore.
type BlobstoreConfigProvider interface {
	BlobstoreConfig() *storage.Config
}

// KeyManagerConfigProvider signals that the config knows how to select and
// configure a keys.KeyManager.
type KeyManagerConfigProvider interface {
	KeyManagerConfig() *keys.Config
}

// SecretManagerConfigProvider signals that the config knows how to select
// and configure a secrets.SecretManager.
type SecretManagerConfigProvider interface {
	SecretManagerConfig() *secrets.Config
}

// ObservabilityExporterConfigProvider signals that the config knows how to
// select and configure an observability.Exporter.
type ObservabilityExporterConfigProvider interface {
	ObservabilityExporterConfig() *observability.Config
}

// Defer is returned from Setup and should be deferred by the caller to
// release resources acquired during setup.
type Defer func()

// Setup runs the common initialization shared by every binary in this
// module, resolving configuration from the OS environment.
func Setup(ctx context.Context, config interface{}) (*serverenv.ServerEnv, Defer, error) {
	return SetupWith(ctx, config, envconfig.OsLookuper())
}

// SetupWith runs the common initialization shared by every binary in this
// module: it constructs a bootstrap secret manager, loads config via the
// given Lookuper, and then conditionally installs whichever backends config
// asks for. Tests supply an envconfig.MapLookuper in place of the OS
// environment.
func SetupWith(ctx context.Context, config interface{}, lookuper envconfig.Lookuper) (*serverenv.ServerEnv, Defer, error) {
	logger := logging.FromContext(ctx)

	// The secret manager is bootstrapped ahead of general config processing
	// so that "secret://" references inside the rest of the config can be
	// resolved as env vars are parsed.
	var sm secrets.SecretManager
	if typ, ok := config.(SecretManagerConfigProvider); ok {
		smConfig := typ.SecretManagerConfig()

		var err error
		sm, err = secrets.SecretManagerFor(ctx, smConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to connect to secret manager: %w", err)
		}

		ttl := smConfig.SecretCacheTTL
		if ttl == 0 {
			ttl = defaultSecretCacheTTL
		}
		sm, err = secrets.WrapCacher(ctx, sm, ttl)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to wrap secret manager with cache: %w", err)
		}
	}

	var mutators []envconfig.MutatorFunc
	if sm != nil {
		if typ, ok := config.(SecretManagerConfigProvider); ok {
			mutators = append(mutators, secrets.Resolver(sm, typ.SecretManagerConfig()))
		}
	}

	if err := envconfig.ProcessWith(ctx, config, lookuper, mutators...); err != nil {
		return nil, nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	opts := []serverenv.Option{}
	if sm != nil {
		opts = append(opts, serverenv.WithSecretManager(sm))
	}

	if typ, ok := config.(ObservabilityExporterConfigProvider); ok {
		obsConfig := typ.ObservabilityExporterConfig()
		logger.Infof("effective observability exporter config: %+v", obsConfig)

		exporter, err := observability.NewFromEnv(obsConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to connect to observability exporter: %w", err)
		}
		if err := exporter.StartExporter(ctx); err != nil {
			return nil, nil, fmt.Errorf("unable to start observability exporter: %w", err)
		}
		opts = append(opts, serverenv.WithObservabilityExporter(exporter))
	}

	if typ, ok := config.(KeyManagerConfigProvider); ok {
		kmConfig := typ.KeyManagerConfig()
		logger.Infof("effective key manager config: %+v", kmConfig)

		km, err := keys.KeyManagerFor(ctx, kmConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to connect to key manager: %w", err)
		}
		opts = append(opts, serverenv.WithKeyManager(km))
	}

	if typ, ok := config.(BlobstoreConfigProvider); ok {
		bsConfig := typ.BlobstoreConfig()
		logger.Infof("effective blobstore config: %+v", bsConfig)

		bs, err := storage.BlobstoreFor(ctx, bsConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to connect to storage system: %w", err)
		}
		opts = append(opts, serverenv.WithBlobStorage(bs))
	}

	var db *database.DB
	if typ, ok := config.(DatabaseConfigProvider); ok {
		dbConfig := typ.DatabaseConfig()

		redacted := *dbConfig
		redacted.Password = "<hidden>"
		logger.Infof("effective database config: %+v", redacted)

		var err error
		db, err = database.NewFromEnv(ctx, dbConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to connect to database: %w", err)
		}
		opts = append(opts, serverenv.WithDatabase(db))
	}

	env := serverenv.New(ctx, opts...)
	return env, func() {
		if err := env.Close(ctx); err != nil {
			logger.Errorf("error closing server environment: %v", err)
		}
	}, nil
}
