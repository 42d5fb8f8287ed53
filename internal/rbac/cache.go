// Copyright 2026 The Pulsar Console Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rbac

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CatalogCache is a read-through cache over the permission catalog.
// The catalog is small and changes only at deployment time, but the
// cache is injected and explicitly invalidated rather than held in a
// process-global so callers control its lifecycle.
type CatalogCache struct {
	repo  PermissionRepository
	cache *lru.Cache[PermissionKey, *Permission]
}

// NewCatalogCache creates a catalog cache over a permission repository.
func NewCatalogCache(repo PermissionRepository) (*CatalogCache, error) {
	// The full catalog fits many times over; sized for headroom.
	c, err := lru.New[PermissionKey, *Permission](128)
	if err != nil {
		return nil, err
	}
	return &CatalogCache{repo: repo, cache: c}, nil
}

// Get resolves a permission by (action, level), hitting storage on miss.
func (c *CatalogCache) Get(ctx context.Context, action Action, level ResourceLevel) (*Permission, error) {
	key := PermissionKey{Action: action, Level: level}
	if p, ok := c.cache.Get(key); ok {
		return p, nil
	}
	p, err := c.repo.GetByKey(ctx, action, level)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, p)
	return p, nil
}

// Invalidate drops every cached entry. Called after catalog changes.
func (c *CatalogCache) Invalidate() {
	c.cache.Purge()
}
