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

// Package storage is an interface over blob storage systems used to publish
// export archives and the index manifest that points at them.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/exposure-notifications/export-engine/pkg/logging"
)

// ErrNotFound is returned by GetObject when the requested object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// BlobstoreType identifies which concrete Blobstore backend to construct.
type BlobstoreType string

const (
	BlobstoreTypeGoogleCloudStorage BlobstoreType = "GOOGLE_CLOUD_STORAGE"
	BlobstoreTypeAWSS3              BlobstoreType = "AWS_S3"
	BlobstoreTypeAzureBlobStorage   BlobstoreType = "AZURE_BLOB_STORAGE"
	BlobstoreTypeFilesystem         BlobstoreType = "FILESYSTEM"
	BlobstoreTypeMemory             BlobstoreType = "MEMORY"
	BlobstoreTypeNoop               BlobstoreType = "NOOP"
)

const (
	// ContentTypeZip is the content type stamped on per-batch export archives.
	ContentTypeZip = "application/zip"
	// ContentTypeJSON is the content type stamped on JSON payloads.
	ContentTypeJSON = "application/json"
	// ContentTypeTextPlain is the content type stamped on the newline-delimited
	// index manifest.
	ContentTypeTextPlain = "text/plain"
)

// Config is the environment-bound configuration for selecting a Blobstore.
type Config struct {
	BlobstoreType BlobstoreType `env:"BLOBSTORE, default=FILESYSTEM"`
}

// Blobstore defines the minimum interface the export pipeline needs from an
// object storage system: publish a new object (overwrite semantics) and
// atomically replace one object's contents with another's (used for the
// common-index alias).
//
// There is deliberately no read path here: nothing downstream of the export
// pipeline needs to read back what it just wrote.
type Blobstore interface {
	// CreateObject writes contents to bucket/objectName, overwriting any
	// existing object at that path. cacheable controls whether the object is
	// served with a long-lived cache header; the per-run index and per-batch
	// archives are cacheable, the common-index alias is not (it changes on
	// every run and clients must not cache it).
	CreateObject(ctx context.Context, bucket, objectName string, contents []byte, cacheable bool, contentType string) error

	// CopyObject atomically replaces dstName's contents with srcName's,
	// within the same bucket. Used to flip the common-index alias onto the
	// just-published timestamped index in one step.
	CopyObject(ctx context.Context, bucket, srcName, dstName string) error

	// DeleteObject removes an object, or does nothing if it does not exist.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// BlobstoreFor constructs the Blobstore named by config.BlobstoreType.
func BlobstoreFor(ctx context.Context, config *Config) (Blobstore, error) {
	logger := logging.FromContext(ctx)
	logger.Infof("configuring blobstore backend %v", config.BlobstoreType)

	switch config.BlobstoreType {
	case BlobstoreTypeGoogleCloudStorage:
		return NewGoogleCloudStorage(ctx)
	case BlobstoreTypeAWSS3:
		return NewAWSS3(ctx)
	case BlobstoreTypeAzureBlobStorage:
		return NewAzureBlobstore(ctx)
	case BlobstoreTypeFilesystem:
		return NewFilesystemStorage(ctx)
	case BlobstoreTypeMemory:
		return NewMemory(ctx)
	case BlobstoreTypeNoop:
		return NewNoop(ctx)
	default:
		return nil, fmt.Errorf("storage: unknown blobstore type %q", config.BlobstoreType)
	}
}
