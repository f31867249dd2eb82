// Package main provides the strata CLI: a thin shell over the model layer
// for inspecting and editing datasets on any configured backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/strata/internal/paths"
	"github.com/mesh-intelligence/strata/pkg/database"

	_ "github.com/mesh-intelligence/strata/internal/filedb"
	_ "github.com/mesh-intelligence/strata/internal/memory"
	_ "github.com/mesh-intelligence/strata/internal/mongo"
	_ "github.com/mesh-intelligence/strata/internal/searchdb"
	_ "github.com/mesh-intelligence/strata/internal/sqlite"
)

// Flags set on the root command.
var (
	configFile  string
	dataDirFlag string
	verbose     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata is a model layer over pluggable storage backends",
	Long: `Strata manages declared model types and their relationships over a
configurable storage backend: in-memory, flat files (JSON, YAML, CSV),
SQLite, MongoDB, or a full-text search index.`,
	PersistentPreRunE: initStorage,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeStorage()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: .strata.yaml or ~/.strata/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default: ./"+paths.DefaultDataDirName+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log storage operations to stderr")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(countCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the storage backend",
	Long:  `Initialize the configured storage backend and declare the configured models.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Storage is already initialized by PersistentPreRunE.
		fmt.Println("Storage initialized successfully")
		return nil
	},
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the available backend types",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, token := range database.AdapterTypes() {
			fmt.Println(token)
		}
		return nil
	},
}
