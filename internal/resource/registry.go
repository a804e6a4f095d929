/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package resource

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"gostoryboard/internal/domain"
)

// Registry holds the bytes behind display handles for the current session.
// Handles never survive a restart; persistence goes through blobs.
type Registry struct {
	c   *cache.Cache
	ttl time.Duration
}

// NewRegistry returns a registry. ttl > 0 expires handles that were not
// read for that long; 0 keeps them until released.
func NewRegistry(ttl time.Duration) *Registry {
	exp, cleanup := cache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		exp, cleanup = ttl, ttl
	}
	return &Registry{c: cache.New(exp, cleanup), ttl: ttl}
}

// Put stores b and returns a fresh handle ref for it.
func (r *Registry) Put(b *Blob) domain.ResourceRef {
	id := uuid.NewString()
	r.c.Set(id, b.clone(), cache.DefaultExpiration)
	return domain.ResourceRef(domain.SchemeHandle + id)
}

// Get returns the blob behind a handle ref.
func (r *Registry) Get(ref domain.ResourceRef) (*Blob, bool) {
	id, ok := handleID(ref)
	if !ok {
		return nil, false
	}
	v, found := r.c.Get(id)
	if !found {
		return nil, false
	}
	b := v.(*Blob)
	if r.ttl > 0 {
		// touch
		r.c.Set(id, b, cache.DefaultExpiration)
	}
	return b.clone(), true
}

// Release drops a handle. Unknown handles are ignored.
func (r *Registry) Release(ref domain.ResourceRef) {
	if id, ok := handleID(ref); ok {
		r.c.Delete(id)
	}
}

// Sweep releases every handle not present in live and returns how many were dropped.
func (r *Registry) Sweep(live map[domain.ResourceRef]struct{}) int {
	n := 0
	for id := range r.c.Items() {
		if _, ok := live[domain.ResourceRef(domain.SchemeHandle+id)]; ok {
			continue
		}
		r.c.Delete(id)
		n++
	}
	return n
}

// Len returns the number of registered handles.
func (r *Registry) Len() int { return r.c.ItemCount() }

func handleID(ref domain.ResourceRef) (string, bool) {
	if !ref.IsHandle() {
		return "", false
	}
	id := strings.TrimPrefix(string(ref), domain.SchemeHandle)
	return id, id != ""
}
