// hdl-facts prints the relational fact tables of elaborated designs, before
// or after force lowering, without writing lowered documents.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/robert-at-pretension-io/hdl-force/internal/config"
	"github.com/robert-at-pretension-io/hdl-force/internal/driver"
	"github.com/robert-at-pretension-io/hdl-force/internal/facts"
)

var (
	outputPath string
	configPath string
	scopes     []string
	files      []string
	unlowered  bool
	deltaFrom  string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "hdl-facts",
	Short: "Fact tables of elaborated designs",
	Long: `hdl-facts lowers designs in memory and prints their fact tables.

Nothing is written next to the designs. Use hdl-force to produce lowered
documents.`,
	SilenceUsage: true,
}

var tablesCmd = &cobra.Command{
	Use:   "tables <path>",
	Short: "Print the fact tables as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := loadTables(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), tables)
	},
}

var deltaCmd = &cobra.Command{
	Use:   "delta <path>",
	Short: "Print the rows lowering added and removed",
	Long: `Without --from, compares each design with its own lowered form.
With --from, compares a previously saved tables file with the current
lowered tables.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := collect(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		delta := snap.Delta()
		if deltaFrom != "" {
			prev, err := readTables(deltaFrom)
			if err != nil {
				return fmt.Errorf("reading --from: %w", err)
			}
			delta = facts.ComputeDelta(prev, snap.After)
		}
		if len(files) > 0 {
			delta = facts.FilterDeltaByFiles(delta, absSet(files))
		}
		return emit(cmd.OutOrStdout(), delta)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <path> <jq-expression>",
	Short: "Run a jq expression over the fact tables",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := loadTables(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		results, err := facts.Query(tables, args[1])
		if err != nil {
			return err
		}
		if outputPath != "" {
			return writeJSON(outputPath, results)
		}
		w := cmd.OutOrStdout()
		for _, r := range results {
			if err := emit(w, r); err != nil {
				return err
			}
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Write the fact tables to a SQLite database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if dbPath == "" {
			return fmt.Errorf("--db is required")
		}
		tables, err := loadTables(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := facts.WriteStore(cmd.Context(), dbPath, tables); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d rows to %s\n", tables.Len(), dbPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: search from path)")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "write JSON to file (default: stdout)")
	rootCmd.PersistentFlags().StringSliceVar(&files, "file", nil, "keep only rows of these design files")

	for _, cmd := range []*cobra.Command{tablesCmd, queryCmd, exportCmd} {
		cmd.Flags().BoolVar(&unlowered, "unlowered", false, "use the tables before lowering")
		cmd.Flags().StringSliceVar(&scopes, "scope", nil, "keep only rows of these scopes")
	}
	deltaCmd.Flags().StringVar(&deltaFrom, "from", "", "previous tables JSON to compute the delta from")
	exportCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database to write")

	rootCmd.AddCommand(tablesCmd, deltaCmd, queryCmd, exportCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func collect(ctx context.Context, path string) (*driver.Snapshot, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return driver.New(cfg).Collect(ctx, path)
}

func loadTables(ctx context.Context, path string) (facts.Tables, error) {
	snap, err := collect(ctx, path)
	if err != nil {
		return facts.Tables{}, err
	}
	tables := snap.After
	if unlowered {
		tables = snap.Before
	}
	if len(files) > 0 {
		tables = facts.FilterTablesByFiles(tables, absSet(files))
	}
	if len(scopes) > 0 {
		set := make(map[string]bool, len(scopes))
		for _, s := range scopes {
			set[s] = true
		}
		tables = facts.FilterTablesByScopes(tables, set)
	}
	return tables, nil
}

func absSet(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		set[p] = true
	}
	return set
}

func emit(stdout io.Writer, v any) error {
	if outputPath != "" {
		return writeJSON(outputPath, v)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readTables(path string) (facts.Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return facts.Tables{}, err
	}
	defer func() { _ = f.Close() }()

	var tables facts.Tables
	if err := json.NewDecoder(f).Decode(&tables); err != nil {
		return facts.Tables{}, err
	}
	return tables, nil
}

func writeJSON(path string, data interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
