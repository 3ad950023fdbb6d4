// Command kvcli is a small command-line front end over the embedded
// store, built with spf13/cobra - the CLI toolkit the pack's pebble
// checkout (devlibx-pebble) uses for its own cmd/pebble tool. It gives
// the library an external interface a user can drive directly without
// adding a network interface (spec.md §1's Non-goals still exclude that).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lsmkv/internal/config"
	"lsmkv/store"
)

var dir string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kvcli",
		Short: "kvcli drives an embedded leveled LSM key-value store",
	}
	root.PersistentFlags().StringVar(&dir, "dir", "lsmkv-data", "store data directory")
	root.AddCommand(putCmd(), getCmd())
	return root
}

func openStore() *store.Store {
	cfg := config.Default()
	cfg.Dir = dir
	return store.MustOpen(cfg)
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "write a key-value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := openStore()
			if err := s.Put(args[0], args[1]); err != nil {
				return fmt.Errorf("put: %w", err)
			}
			// A single Put may leave the pair sitting in the mutable
			// table (store.go only flushes past block_size); since this
			// process exits right after, force it to disk now or the
			// write never survives past this invocation.
			if err := s.Flush(); err != nil {
				return fmt.Errorf("put: flush: %w", err)
			}
			return nil
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "read a key's value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := openStore()
			v, ok, err := s.Get(args[0])
			if err != nil {
				return fmt.Errorf("get: %w", err)
			}
			if !ok {
				return fmt.Errorf("key not found: %s", args[0])
			}
			fmt.Println(v)
			return nil
		},
	}
}
