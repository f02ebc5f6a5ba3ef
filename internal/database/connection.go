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

// Package database is a facade over the data storage layer.
package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/exposure-notifications/export-engine/pkg/logging"

	"github.com/jackc/pgx/v4/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

// NewFromEnv sets up the database connection pool using the provided,
// already-processed configuration. This should be called just once per
// server instance.
func NewFromEnv(ctx context.Context, cfg *Config) (*DB, error) {
	logger := logging.FromContext(ctx)
	logger.Infof("creating database connection pool")

	connStr := connectionString(cfg)

	pool, err := pgxpool.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close releases database connections.
func (db *DB) Close(ctx context.Context) {
	logger := logging.FromContext(ctx)
	logger.Infof("closing database connection pool")
	db.Pool.Close()
}

// connectionString builds a libpq-style keyword/value connection string from
// cfg, suitable for the pgx driver.
func connectionString(cfg *Config) string {
	parts := map[string]string{
		"dbname":  cfg.Name,
		"user":    cfg.User,
		"host":    cfg.Host,
		"port":    cfg.Port,
		"sslmode": cfg.SSLMode,
	}
	if cfg.Password != "" {
		parts["password"] = cfg.Password
	}
	if cfg.ConnectionTimeout != 0 {
		parts["connect_timeout"] = fmt.Sprintf("%d", cfg.ConnectionTimeout)
	}
	if cfg.SSLCertPath != "" {
		parts["sslcert"] = cfg.SSLCertPath
	}
	if cfg.SSLKeyPath != "" {
		parts["sslkey"] = cfg.SSLKeyPath
	}
	if cfg.SSLRootCertPath != "" {
		parts["sslrootcert"] = cfg.SSLRootCertPath
	}
	if cfg.PoolMinConnections != "" {
		parts["pool_min_conns"] = cfg.PoolMinConnections
	}
	if cfg.PoolMaxConnections != "" {
		parts["pool_max_conns"] = cfg.PoolMaxConnections
	}
	if cfg.PoolMaxConnLife != 0 {
		parts["pool_max_conn_lifetime"] = cfg.PoolMaxConnLife.String()
	}
	if cfg.PoolMaxConnIdle != 0 {
		parts["pool_max_conn_idle_time"] = cfg.PoolMaxConnIdle.String()
	}
	if cfg.PoolHealthCheck != 0 {
		parts["pool_health_check_period"] = cfg.PoolHealthCheck.String()
	}

	var p []string
	for k, v := range parts {
		if v == "" {
			continue
		}
		p = append(p, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(p, " ")
}
