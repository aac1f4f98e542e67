package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"agentstore/internal/storage"
)

var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Read and write the key-value store",
}

var kvGetCmd = &cobra.Command{
	Use:   "get <file> <key>",
	Short: "Print the value for a key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ranCommand = true
		store, err := openStore(args[0])
		if err != nil {
			return err
		}
		defer store.Close()
		value, err := storage.NewKV(store).Get(cmd.Context(), args[1])
		if err != nil {
			return fmt.Errorf("get %s: %w", args[1], err)
		}
		fmt.Println(value)
		return nil
	},
}

var kvSetCmd = &cobra.Command{
	Use:   "set <file> <key> <value>",
	Short: "Set a key to a JSON value",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ranCommand = true
		store, err := openStore(args[0])
		if err != nil {
			return err
		}
		defer store.Close()
		return storage.NewKV(store).Set(cmd.Context(), args[1], args[2])
	},
}

var kvDelCmd = &cobra.Command{
	Use:   "del <file> <key>",
	Short: "Delete a key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ranCommand = true
		store, err := openStore(args[0])
		if err != nil {
			return err
		}
		defer store.Close()
		return storage.NewKV(store).Delete(cmd.Context(), args[1])
	},
}

var kvKeysCmd = &cobra.Command{
	Use:   "keys <file>",
	Short: "List all keys",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ranCommand = true
		store, err := openStore(args[0])
		if err != nil {
			return err
		}
		defer store.Close()
		keys, err := storage.NewKV(store).Keys(cmd.Context())
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	},
}

func init() {
	kvCmd.AddCommand(kvGetCmd, kvSetCmd, kvDelCmd, kvKeysCmd)
	rootCmd.AddCommand(kvCmd)
}

func openStore(path string) (*storage.Store, error) {
	store, _, err := openStoreFS(path)
	return store, err
}
