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

package common

import (
	"path"
	"strings"
)

// NormalizePath cleans a path and anchors it at "/". Empty and "." both
// normalize to the root.
func NormalizePath(p string) string {
	p = path.Clean(p)
	if p == "." || p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// SplitPath splits a normalized path into its components. The root path
// yields no components.
func SplitPath(p string) []string {
	p = strings.Trim(NormalizePath(p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// SplitParent splits a path into its parent directory and final component.
func SplitParent(p string) (parent, name string) {
	p = NormalizePath(p)
	if p == "/" {
		return "/", ""
	}
	dir, base := path.Split(p)
	return NormalizePath(dir), base
}

// JoinPath joins components into a normalized absolute path.
func JoinPath(parts ...string) string {
	return NormalizePath(path.Join(parts...))
}
