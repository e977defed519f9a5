package cmd

import (
	"strings"

	"github.com/abdul-hamid-achik/hitplan/packages/plan"
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for hitplan.

To load completions:

Bash:
  $ source <(hitplan completion bash)

Zsh:
  $ hitplan completion zsh > "${fpath[1]}/_hitplan"

Fish:
  $ hitplan completion fish > ~/.config/fish/completions/hitplan.fish

PowerShell:
  PS> hitplan completion powershell | Out-String | Invoke-Expression

Plan arguments of run, validate and list complete to plan files.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletionV2(out, true)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

// completePlanFiles completes files carrying a plan extension, and
// directories.
func completePlanFiles(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	exts := make([]string, len(plan.Extensions))
	for i, ext := range plan.Extensions {
		exts[i] = strings.TrimPrefix(ext, ".")
	}
	return exts, cobra.ShellCompDirectiveFilterFileExt
}

func init() {
	rootCmd.AddCommand(completionCmd)
	for _, c := range []*cobra.Command{runCmd, validateCmd, listCmd} {
		c.ValidArgsFunction = completePlanFiles
	}
}
