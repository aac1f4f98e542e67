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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", "/"},
		{"dot", ".", "/"},
		{"root", "/", "/"},
		{"plain", "/a/b", "/a/b"},
		{"relative", "a/b", "/a/b"},
		{"trailing slash", "/a/b/", "/a/b"},
		{"double slash", "/a//b", "/a/b"},
		{"dot segments", "/a/./b/../c", "/a/c"},
		{"leading dotdot", "/../a", "/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, NormalizePath(tt.input))
		})
	}
}

func TestSplitPath(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SplitPath("/"))
	assert.Equal(t, []string{"a"}, SplitPath("/a"))
	assert.Equal(t, []string{"a", "b", "c"}, SplitPath("/a/b/c/"))
}

func TestSplitParent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path   string
		parent string
		name   string
	}{
		{"/", "/", ""},
		{"/a", "/", "a"},
		{"/a/b", "/a", "b"},
		{"/a/b/c", "/a/b", "c"},
	}

	for _, tt := range tests {
		parent, name := SplitParent(tt.path)
		assert.Equal(t, tt.parent, parent, "parent of %s", tt.path)
		assert.Equal(t, tt.name, name, "name of %s", tt.path)
	}
}
