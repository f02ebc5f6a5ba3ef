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

// Package keys defines the interface to and implementation of key management
// operations.
//
// Although exported, this package is not intended for general consumption. It
// is a shared dependency between multiple exposure notifications projects. We
// cannot guarantee that there won't be breaking changes in the future.
package keys

import (
	"context"
	"crypto"
	"fmt"
	"sort"
	"sync"
	"time"
)

// KeyManager defines the interface for working with a KMS system that is able
// to sign bytes using PKI and encrypt/decrypt small blobs.
type KeyManager interface {
	NewSigner(ctx context.Context, keyID string) (crypto.Signer, error)

	// Encrypt will encrypt a byte array along with accompanying Additional
	// Authenticated Data (AAD). Support for non-empty AAD depends on the
	// implementation being used.
	Encrypt(ctx context.Context, keyID string, plaintext []byte, aad []byte) ([]byte, error)

	// Decrypt will decrypt a previously encrypted byte array along with
	// accompanying Additional Authenticated Data (AAD). If AAD was supplied at
	// encryption time, the same AAD must be supplied here.
	Decrypt(ctx context.Context, keyID string, ciphertext []byte, aad []byte) ([]byte, error)
}

// SigningKeyVersion represents the details this application needs to manage
// signing keys and their versions in an external KMS.
type SigningKeyVersion interface {
	KeyID() string
	CreatedAt() time.Time
	DestroyedAt() time.Time
	Signer(ctx context.Context) (crypto.Signer, error)
}

// SigningKeyManager is implemented by key managers capable of creating and
// rotating their own signing keys (used by local/dev backends; production
// KMS-backed managers expect keys provisioned out of band).
type SigningKeyManager interface {
	KeyManager

	CreateSigningKey(ctx context.Context, parent, name string) (string, error)
	CreateKeyVersion(ctx context.Context, parent string) (string, error)
	DestroyKeyVersion(ctx context.Context, id string) error
	SigningKeyVersions(ctx context.Context, parent string) ([]SigningKeyVersion, error)
}

// EncryptionKeyManager is implemented by key managers capable of creating and
// rotating their own encryption keys.
type EncryptionKeyManager interface {
	KeyManager

	CreateEncryptionKey(ctx context.Context, parent, name string) (string, error)
	CreateKeyVersion(ctx context.Context, parent string) (string, error)
	DestroyKeyVersion(ctx context.Context, id string) error
}

// Key manager type identifiers, matched against Config.Type and used as the
// registry key passed to RegisterManager by each backend's init().
const (
	KeyManagerTypeAWSKMS         = "AWS_KMS"
	KeyManagerTypeAzureKeyVault  = "AZURE_KEY_VAULT"
	KeyManagerTypeFilesystem     = "FILESYSTEM"
	KeyManagerTypeGoogleCloudKMS = "GOOGLE_CLOUD_KMS"
	KeyManagerTypeHashiCorpVault = "HASHICORP_VAULT"
	KeyManagerTypeInMemory       = "IN_MEMORY"
	KeyManagerTypeNoop           = "NOOP"
)

// ManagerFunc constructs a KeyManager from a Config. Backends register one of
// these under their type string in their package init().
type ManagerFunc func(ctx context.Context, cfg *Config) (KeyManager, error)

var (
	managersMu sync.RWMutex
	managers   = make(map[string]ManagerFunc)
)

// RegisterManager registers a key manager constructor under the given type
// name. It is expected to be called from package init() functions; a
// duplicate registration panics since it can only indicate a programming
// error.
func RegisterManager(typ string, fn ManagerFunc) {
	managersMu.Lock()
	defer managersMu.Unlock()

	if _, ok := managers[typ]; ok {
		panic(fmt.Sprintf("keys: manager %q already registered", typ))
	}
	managers[typ] = fn
}

// RegisteredManagers returns the sorted list of registered key manager type
// names. Exposed for diagnostics and tests.
func RegisteredManagers() []string {
	managersMu.RLock()
	defer managersMu.RUnlock()

	names := make([]string, 0, len(managers))
	for k := range managers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// KeyManagerFor returns the appropriate key manager for the given config's
// type, constructing it via the backend registered under that type name.
func KeyManagerFor(ctx context.Context, cfg *Config) (KeyManager, error) {
	managersMu.RLock()
	fn, ok := managers[cfg.Type]
	managersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown key manager type: %v", cfg.Type)
	}
	return fn(ctx, cfg)
}
