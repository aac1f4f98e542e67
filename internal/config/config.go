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

// Package config loads the user-level settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvConfigDir overrides the settings directory, mainly for test
// isolation.
const EnvConfigDir = "AGENTSTORE_CONFIG_DIR"

// Settings is the ~/.agentstore/settings.yaml contents. All fields are
// optional; the zero value is a valid configuration.
type Settings struct {
	// DefaultDB is the store file backing the implicit /agent mount.
	DefaultDB string `yaml:"default_db"`
	// CLIBusyTimeout is the SQLite busy_timeout (ms) for CLI access.
	CLIBusyTimeout int `yaml:"cli_busy_timeout"`
	// SandboxBusyTimeout is the SQLite busy_timeout (ms) for sandbox access.
	SandboxBusyTimeout int `yaml:"sandbox_busy_timeout"`
	// Strace turns on syscall tracing for every run.
	Strace bool `yaml:"strace"`
	// Mounts are extra mount specs applied to every run, before
	// command-line mounts.
	Mounts []string `yaml:"mounts"`
}

// Dir returns the configuration directory path.
func Dir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agentstore")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(Dir(), "settings.yaml")
}

// DefaultDBPath returns the store file used when neither the settings
// file nor the command line names one.
func DefaultDBPath() string {
	return filepath.Join(Dir(), "agent.db")
}

// Load reads the settings file. A missing file yields the zero settings.
func Load() (*Settings, error) {
	var s Settings
	data, err := os.ReadFile(SettingsPath())
	if os.IsNotExist(err) {
		return &s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return &s, nil
}
