// Copyright 2025 AgentStore Authors
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

package sandbox

import (
	"fmt"
	"strings"

	"agentstore/internal/common"
	"agentstore/internal/storage"
	"agentstore/internal/vfs"
)

// Mount types accepted in a mount spec.
const (
	MountTypeBind   = "bind"   // host directory passthrough
	MountTypeSQLite = "sqlite" // store-backed filesystem
)

// DefaultMountPoint is where the implicit store mount appears in the
// guest when no explicit mount claims it.
const DefaultMountPoint = "/agent"

// MountSpec is one parsed `type=...,src=...,dst=...` mount argument.
type MountSpec struct {
	Type string
	Src  string
	Dst  string
}

// ParseMountSpec parses a `type=<bind|sqlite>,src=<path>,dst=<guest-path>`
// string. All three keys are required.
func ParseMountSpec(s string) (MountSpec, error) {
	var spec MountSpec
	for _, field := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return spec, fmt.Errorf("%w: malformed mount field %q", common.ErrInvalidArgument, field)
		}
		switch key {
		case "type":
			spec.Type = value
		case "src":
			spec.Src = value
		case "dst":
			spec.Dst = value
		default:
			return spec, fmt.Errorf("%w: unknown mount key %q", common.ErrInvalidArgument, key)
		}
	}
	if spec.Type != MountTypeBind && spec.Type != MountTypeSQLite {
		return spec, fmt.Errorf("%w: mount type must be bind or sqlite, got %q", common.ErrInvalidArgument, spec.Type)
	}
	if spec.Src == "" || spec.Dst == "" {
		return spec, fmt.Errorf("%w: mount spec needs src and dst", common.ErrInvalidArgument)
	}
	spec.Dst = common.NormalizePath(spec.Dst)
	return spec, nil
}

// BuildMountTable opens every spec's backend and composes the mount
// table. When no spec claims DefaultMountPoint and defaultDB is non-empty,
// an implicit `type=sqlite,src=<defaultDB>,dst=/agent` mount is appended
// last.
// Opened stores are returned so the caller can close them after the
// sandboxed command exits.
func BuildMountTable(specs []MountSpec, defaultDB string) (*vfs.MountTable, []*storage.Store, error) {
	hasDefault := false
	for _, spec := range specs {
		if spec.Dst == DefaultMountPoint {
			hasDefault = true
		}
	}
	if !hasDefault && defaultDB != "" {
		specs = append(specs, MountSpec{
			Type: MountTypeSQLite,
			Src:  defaultDB,
			Dst:  DefaultMountPoint,
		})
	}

	var mounts []vfs.Mount
	var stores []*storage.Store
	closeAll := func() {
		for _, s := range stores {
			s.Close()
		}
	}

	for _, spec := range specs {
		switch spec.Type {
		case MountTypeBind:
			mounts = append(mounts, vfs.Mount{Prefix: spec.Dst, FS: vfs.NewPassthrough(spec.Src)})
		case MountTypeSQLite:
			store, err := storage.OpenWithContext(spec.Src, storage.DBContextSandbox)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("failed to open store %s: %w", spec.Src, err)
			}
			stores = append(stores, store)
			mounts = append(mounts, vfs.Mount{Prefix: spec.Dst, FS: vfs.NewStoreFS(store)})
		}
	}

	table, err := vfs.NewMountTable(mounts)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return table, stores, nil
}
