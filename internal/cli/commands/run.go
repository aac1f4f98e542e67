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
	"io"
	"os"

	"github.com/spf13/cobra"

	"agentstore/internal/sandbox"
)

var (
	runMounts []string
	runStrace bool
	runDB     string
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <cmd> [args...]",
	Short: "Execute a command under the sandbox",
	Long: `Run a command with its filesystem syscalls redirected into the store.
Paths under a mount are serviced virtually; everything else reaches the
kernel unmodified. Without an explicit mount of /agent, the default
store is mounted there.

Mount specs take the form type=<bind|sqlite>,src=<path>,dst=<guest-path>.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRunCmd,
}

func init() {
	runCmd.Flags().StringArrayVar(&runMounts, "mount", nil, "mount spec (repeatable)")
	runCmd.Flags().BoolVar(&runStrace, "strace", false, "trace handled syscalls to stderr")
	runCmd.Flags().StringVar(&runDB, "db", "", "store file for the implicit /agent mount")
	runCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(runCmd)
}

func runRunCmd(cmd *cobra.Command, args []string) error {
	// Mount spec errors count as usage errors; ranCommand flips after
	// parsing succeeds.
	var specs []sandbox.MountSpec
	for _, raw := range append(append([]string{}, settings.Mounts...), runMounts...) {
		spec, err := sandbox.ParseMountSpec(raw)
		if err != nil {
			return fmt.Errorf("invalid --mount %q: %w", raw, err)
		}
		specs = append(specs, spec)
	}
	ranCommand = true

	db := runDB
	if db == "" {
		db = defaultDBPath()
	}

	var strace io.Writer
	if runStrace || settings.Strace {
		strace = os.Stderr
	}

	code, err := sandbox.Exec(args, sandbox.ExecOptions{
		Mounts:    specs,
		DefaultDB: db,
		Strace:    strace,
	})
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitCodeError{Code: code}
	}
	return nil
}
