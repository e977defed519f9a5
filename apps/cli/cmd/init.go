package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/hitplan/packages/core/config"
	"github.com/abdul-hamid-achik/hitplan/packages/core/logging"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new hitplan project",
	Long: `Initialize a new hitplan project in the current directory.

This creates:
  - hitplan.yaml        - Configuration file
  - example.plan.yaml   - Example test plan

Examples:
  hitplan init
  hitplan init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

// examplePlan exercises hooks, data rows, dependencies and parallel units.
const examplePlan = `name: example
description: A small plan showing hooks, data rows and dependencies
variables:
  greeting: hello

setup:
  - name: prepare workspace
    shell: mkdir -p .hitplan-tmp
cleanup:
  - shell: rm -rf .hitplan-tmp

units:
  - name: greet
    steps:
      - shell: echo {{greeting}}
        capture: out
      - assert:
          - out == hello

  - name: sizes
    dependsOn: [greet]
    parallel: 2
    data:
      rows:
        - {name: small, total: 5}
        - {name: large, total: 500}
    steps:
      - assert:
          - "{{total}} > 0"

  - name: storage
    parallel: 2
    setup:
      - sql: CREATE TABLE IF NOT EXISTS items (name TEXT, qty INTEGER)
      - sql: DELETE FROM items
      - sql: INSERT INTO items VALUES ('bolt', 3), ('nut', 7)
    units:
      - name: total stock
        steps:
          - sql: SELECT SUM(qty) AS total FROM items
            checks:
              - total == 10
      - name: failing command is expected
        expectError: exit status 3
        steps:
          - shell: exit 3
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, "hitplan.yaml")
	exampleFile := filepath.Join(cwd, "example.plan.yaml")

	if !forceInit {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return withExitCode(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.Parallelism = 2
	cfg.Database = "sqlite://.hitplan-tmp/example.db"
	cfg.OutputDir = "reports"
	cfg.Reporters = []string{"console", "junit"}
	cfg.Log = &logging.Config{Level: "warn", Format: "console"}
	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(exampleFile, []byte(examplePlan), 0o644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nhitplan project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'hitplan run example.plan.yaml' to execute the example plan.\n")

	return nil
}
