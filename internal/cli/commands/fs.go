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

	"github.com/spf13/cobra"

	"agentstore/internal/config"
	"agentstore/internal/storage"
)

var fsCmd = &cobra.Command{
	Use:   "fs",
	Short: "Inspect the virtual filesystem inside a store",
}

var fsLsCmd = &cobra.Command{
	Use:   "ls <file> <path>",
	Short: "List a directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runFsLs,
}

var fsCatCmd = &cobra.Command{
	Use:   "cat <file> <path>",
	Short: "Write a file's raw bytes to standard output",
	Args:  cobra.ExactArgs(2),
	RunE:  runFsCat,
}

var fsStatCmd = &cobra.Command{
	Use:   "stat <file> <path>",
	Short: "Print metadata for a path",
	Args:  cobra.ExactArgs(2),
	RunE:  runFsStat,
}

func init() {
	fsCmd.AddCommand(fsLsCmd)
	fsCmd.AddCommand(fsCatCmd)
	fsCmd.AddCommand(fsStatCmd)
	rootCmd.AddCommand(fsCmd)
}

// defaultDBPath resolves the store path used when a command has no file
// argument: the settings file first, then the fixed default.
func defaultDBPath() string {
	if settings.DefaultDB != "" {
		return settings.DefaultDB
	}
	return config.DefaultDBPath()
}

func openStoreFS(path string) (*storage.Store, *storage.FS, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("no store at %s", path)
	}
	store, err := storage.OpenWithContext(path, storage.DBContextCLI)
	if err != nil {
		return nil, nil, err
	}
	return store, storage.NewFS(store), nil
}

func typeChar(mode uint32) string {
	switch mode & 0o170000 {
	case 0o040000:
		return "d"
	case 0o120000:
		return "l"
	default:
		return "f"
	}
}

func runFsLs(cmd *cobra.Command, args []string) error {
	ranCommand = true
	store, fs, err := openStoreFS(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := fs.ReaddirPlus(cmd.Context(), args[1])
	if err != nil {
		return fmt.Errorf("ls %s: %w", args[1], err)
	}
	for _, e := range entries {
		fmt.Printf("%s %s\n", typeChar(e.Stat.Mode), e.Name)
	}
	return nil
}

func runFsCat(cmd *cobra.Command, args []string) error {
	ranCommand = true
	store, fs, err := openStoreFS(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	data, err := fs.ReadFile(cmd.Context(), args[1])
	if err != nil {
		return fmt.Errorf("cat %s: %w", args[1], err)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runFsStat(cmd *cobra.Command, args []string) error {
	ranCommand = true
	store, fs, err := openStoreFS(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	stat, err := fs.Lstat(cmd.Context(), args[1])
	if err != nil {
		return fmt.Errorf("stat %s: %w", args[1], err)
	}
	fmt.Printf("ino:   %d\n", stat.Ino)
	fmt.Printf("mode:  %#o\n", stat.Mode)
	fmt.Printf("nlink: %d\n", stat.Nlink)
	fmt.Printf("size:  %d\n", stat.Size)
	fmt.Printf("mtime: %s\n", stat.Mtime.UTC().Format("2006-01-02 15:04:05"))
	return nil
}
