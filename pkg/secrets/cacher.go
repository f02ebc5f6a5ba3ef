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

package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/exposure-notifications/export-engine/pkg/cache"
)

// Compile-time check to verify implements interface.
var _ SecretManager = (*Cacher)(nil)

// Cacher is a secret manager implementation that wraps another secret manager
// and caches secret values.
type Cacher struct {
	sm    SecretManager
	cache *cache.Cache
}

// NewCacher creates a new secret manager that caches results for the given ttl.
func NewCacher(ctx context.Context, f SecretManagerFunc, ttl time.Duration) (SecretManager, error) {
	sm, err := f(ctx)
	if err != nil {
		return nil, fmt.Errorf("cacher: %w", err)
	}

	return WrapCacher(ctx, sm, ttl)
}

// WrapCacher wraps an existing SecretManager with caching.
func WrapCacher(ctx context.Context, sm SecretManager, ttl time.Duration) (SecretManager, error) {
	cache, err := cache.New(ttl)
	if err != nil {
		return nil, err
	}
	return &Cacher{
		sm:    sm,
		cache: cache,
	}, nil
}

// GetSecretValue implements the SecretManager interface, but caches values and
// retrieves them from the cache.
func (sm *Cacher) GetSecretValue(ctx context.Context, name string) (string, error) {
	lookup := func() (interface{}, error) {
		// Delegate lookup to parent sm.
		plaintext, err := sm.sm.GetSecretValue(ctx, name)
		if err != nil {
			return "", err
		}
		return plaintext, nil
	}

	cacheVal, err := sm.cache.WriteThruLookup(name, lookup)
	if err != nil {
		return "", err
	}

	plaintext := cacheVal.(string)
	return plaintext, err
}
