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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"agentstore/internal/config"
	"agentstore/internal/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// ExitCodeError carries an explicit process exit code, used by `run` to
// forward the child's code.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// settings holds the loaded settings file for the duration of a command.
var settings = &config.Settings{}

// ranCommand flips once a RunE body starts; errors before that are usage
// errors.
var ranCommand bool

var rootCmd = &cobra.Command{
	Use:   "agentstore",
	Short: "Single-file auditable runtime store for autonomous agents",
	Long: `agentstore folds a POSIX-shaped virtual filesystem, a key-value store,
and an immutable tool-call audit log into one SQLite file, and can run
ordinary programs against it through a syscall-interception sandbox.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		loaded, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			return nil
		}
		settings = loaded
		storage.SetConfigBusyTimeouts(settings.CLIBusyTimeout, settings.SandboxBusyTimeout)
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("agentstore version {{.Version}}\n")
}

// Execute runs the root command and returns the process exit code:
// 0 on success, 1 on usage error, 2 on runtime failure, or the child's
// code forwarded by `run`.
func Execute() int {
	ranCommand = false
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	var ec *ExitCodeError
	if errors.As(err, &ec) {
		return ec.Code
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if !ranCommand {
		return 1
	}
	return 2
}
