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

package export

import (
	"context"
	"fmt"
	"net/http"

	"github.com/exposure-notifications/export-engine/internal/serverenv"
	"github.com/exposure-notifications/export-engine/pkg/logging"
)

// NewServer makes a Server.
func NewServer(config *Config, env *serverenv.ServerEnv) (*Server, error) {
	// Validate config.
	if env.Blobstore() == nil {
		return nil, fmt.Errorf("export.NewServer requires Blobstore present in the ServerEnv")
	}
	if env.Database() == nil {
		return nil, fmt.Errorf("export.NewServer requires Database present in the ServerEnv")
	}
	if env.KeyManager() == nil {
		return nil, fmt.Errorf("export.NewServer requires KeyManager present in the ServerEnv")
	}
	if config.MaxRecords <= 0 {
		return nil, fmt.Errorf("EXPORT_FILE_MAX_RECORDS must be positive")
	}
	if config.MinRecords < 0 {
		return nil, fmt.Errorf("EXPORT_FILE_MIN_RECORDS must not be negative")
	}

	return &Server{
		config: config,
		env:    env,
	}, nil
}

// Server hosts the export orchestrator's HTTP entry points.
type Server struct {
	config *Config
	env    *serverenv.ServerEnv
}

// Routes defines and returns the routes for this server.
func (s *Server) Routes(ctx context.Context) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/export", s.handleExport(ctx))
	mux.HandleFunc("/debug", s.handleDebug(ctx))
	mux.HandleFunc("/health", handleHealthz)

	return mux
}

// handleExport runs one scheduler tick (C9): the HTTP entry point an
// external scheduler (cron, timer, queue) invokes on whatever cadence it
// chooses.
func (s *Server) handleExport(ctx context.Context) http.HandlerFunc {
	logger := logging.FromContext(ctx)

	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Tick(r.Context()); err != nil {
			logger.Errorf("export tick failed: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintln(w, "export tick failed")
			return
		}
		fmt.Fprintln(w, "OK")
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}
