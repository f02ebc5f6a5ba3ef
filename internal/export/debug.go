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
	"encoding/json"
	"fmt"
	"net/http"

	exportdatabase "github.com/exposure-notifications/export-engine/internal/export/database"
	"github.com/exposure-notifications/export-engine/internal/model"
	"github.com/exposure-notifications/export-engine/pkg/logging"
)

func (s *Server) handleDebug(ctx context.Context) http.HandlerFunc {
	logger := logging.FromContext(ctx)

	type response struct {
		Config         *Config
		ExportConfigs  []*model.ExportConfig
		SignatureInfos []*model.SignatureInfo
		ExportFiles    map[int64][]string
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		exportDB := exportdatabase.New(s.env.Database())

		exportConfigs, err := exportDB.GetAllExportConfigs(ctx)
		if err != nil {
			logger.Errorf("failed to get all export configs: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, http.StatusText(http.StatusInternalServerError))
			return
		}

		exportFiles := make(map[int64][]string, len(exportConfigs))
		for _, ec := range exportConfigs {
			files, err := exportDB.LookupExportFiles(ctx, ec.ConfigID)
			if err != nil {
				logger.Errorf("failed to get export files for config %d: %v", ec.ConfigID, err)
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, http.StatusText(http.StatusInternalServerError))
				return
			}
			exportFiles[ec.ConfigID] = files
		}

		signatureInfos, err := exportDB.ListAllSignatureInfos(ctx)
		if err != nil {
			logger.Errorf("failed to get all signature infos: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, http.StatusText(http.StatusInternalServerError))
			return
		}

		resp := &response{
			Config:         s.config,
			ExportConfigs:  exportConfigs,
			SignatureInfos: signatureInfos,
			ExportFiles:    exportFiles,
		}

		w.Header().Set("Content-Type", "application/json")

		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		if err := e.Encode(resp); err != nil {
			logger.Errorf("encoding debug response: %v", err)
		}
	}
}
