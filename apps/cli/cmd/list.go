package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"github.com/abdul-hamid-achik/hitplan/packages/plan"
	"github.com/spf13/cobra"
)

var listHooksFlag bool

var listCmd = &cobra.Command{
	Use:   "list <file|directory>...",
	Short: "List the unit tree of test plans",
	Long: `List the units defined in test plans as a tree.

Data-driven units are shown once; their rows are only known at run time.

Examples:
  hitplan list checkout.plan.yaml
  hitplan list ./plans/ --hooks`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

func init() {
	listCmd.Flags().BoolVar(&listHooksFlag, "hooks", false, "Also list setup, cleanup and per-child hooks")
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := plan.Discover(args)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	if len(files) == 0 {
		return withExitCode(ExitUsageError, fmt.Errorf("no plan files found (%s)", strings.Join(plan.Extensions, ", ")))
	}

	loader := plan.NewLoader()
	defer loader.Pool().Close()

	for _, file := range files {
		p, err := loader.Load(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error parsing %v\n", err)
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\n%s:\n", file)
		printTree(cmd.OutOrStdout(), p.Root, listHooksFlag)
	}

	return nil
}

func printTree(w io.Writer, root *unit.Unit, hooks bool) {
	root.Walk(func(n *unit.Unit, depth int) bool {
		indent := strings.Repeat("  ", depth+1)
		fmt.Fprintf(w, "%s- %s\n", indent, describeUnit(n))
		if hooks {
			for _, h := range n.Hooks() {
				fmt.Fprintf(w, "%s    hook: %s\n", indent, h.Label())
			}
		}
		return true
	})
}

// describeUnit renders the label of u with its kind, parallelism and
// sibling dependencies.
func describeUnit(u *unit.Unit) string {
	var attrs []string
	switch u.Kind() {
	case unit.Leaf:
		attrs = append(attrs, fmt.Sprintf("%d steps", len(u.Steps())))
	default:
		attrs = append(attrs, u.Kind().String())
	}
	if u.Parallelism() > 1 {
		attrs = append(attrs, fmt.Sprintf("parallel %d", u.Parallelism()))
	}
	if deps := u.Dependencies(); len(deps) > 0 {
		names := make([]string, len(deps))
		for i, d := range deps {
			names[i] = d.Label()
		}
		attrs = append(attrs, "after "+strings.Join(names, ", "))
	}
	if u.Expect() != nil {
		attrs = append(attrs, "expects error "+fmt.Sprint(u.Expect()))
	}
	return fmt.Sprintf("%s (%s)", u.Label(), strings.Join(attrs, "; "))
}
