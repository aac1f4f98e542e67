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

package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"agentstore/internal/storage"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Create a new store file",
	Long: `Create a new store database. Without an argument the default store
location is used. --force replaces an existing file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInitCmd,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "replace an existing store file")
	rootCmd.AddCommand(initCmd)
}

func runInitCmd(cmd *cobra.Command, args []string) error {
	ranCommand = true

	path := defaultDBPath()
	if len(args) > 0 {
		path = args[0]
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	if initForce {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}

	store, err := storage.CreateWithContext(path, storage.DBContextCLI)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Initialized empty store in %s\n", path)
	return nil
}
