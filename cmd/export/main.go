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

// This package is the service that publishes export archives; it is
// intended to be invoked over HTTP by an external scheduler.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/exposure-notifications/export-engine/internal/export"
	"github.com/exposure-notifications/export-engine/internal/server"
	"github.com/exposure-notifications/export-engine/internal/setup"
	"github.com/exposure-notifications/export-engine/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.DefaultLogger()
	ctx = logging.WithLogger(ctx, logger)

	if err := realMain(ctx); err != nil {
		logger.Fatal(err)
	}
}

func realMain(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	var config export.Config
	env, closer, err := setup.Setup(ctx, &config)
	if err != nil {
		return fmt.Errorf("setup.Setup: %w", err)
	}
	defer closer()

	exportServer, err := export.NewServer(&config, env)
	if err != nil {
		return fmt.Errorf("export.NewServer: %w", err)
	}

	srv := server.New(env.Port(), exportServer.Routes(ctx))
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server.Start: %w", err)
	}
	logger.Infof("listening on :%s", env.Port())

	<-ctx.Done()
	return srv.Stop(context.Background())
}
