package cmd

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"github.com/abdul-hamid-achik/hitplan/packages/plan"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>...",
	Short: "Validate test plans without running them",
	Long: `Validate test plans without executing them.

Each plan is decoded and its unit tree is built, so unknown step kinds,
duplicate unit names and dependency cycles are reported here.

Examples:
  hitplan validate checkout.plan.yaml
  hitplan validate ./plans/`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := plan.Discover(args)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	if len(files) == 0 {
		return withExitCode(ExitUsageError, fmt.Errorf("no plan files found (%s)", strings.Join(plan.Extensions, ", ")))
	}

	loader := plan.NewLoader()
	defer loader.Pool().Close()

	hasErrors := false
	for _, file := range files {
		p, err := loader.Load(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %v\n", err)
			hasErrors = true
			continue
		}
		units := 0
		p.Root.Walk(func(_ *unit.Unit, _ int) bool {
			units++
			return true
		})
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d units)\n", file, units)
	}

	if hasErrors {
		return withExitCode(ExitParseError, fmt.Errorf("validation failed"))
	}

	return nil
}
