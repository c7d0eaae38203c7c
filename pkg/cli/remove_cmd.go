package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"rolesweep/internal/azure"
	"rolesweep/internal/config"
	"rolesweep/internal/domain"
	"rolesweep/internal/ledger"
	"rolesweep/internal/removal"
)

const summaryRounding = 10 * time.Millisecond

func newRemoveCmd(profile *string) *cobra.Command {
	var (
		csvPath string
		execute bool
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete the role assignments listed in a reviewed CSV ledger",
		Long:  "Replays a ledger produced by 'rolesweep generate'. Runs in dry-run mode by\ndefault and only deletes with --execute. Per-row failures are reported in the\nsummary; only a store-wide authorization failure aborts the run.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if csvPath == "" {
				return fmt.Errorf("--csv is required")
			}

			cfg := config.LoadFromEnv()
			logger := newLogger(cfg)

			candidates, err := ledger.New(logger).Read(csvPath)
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No rows found in %s\n", csvPath)
				return nil
			}

			subscriptionID := domain.SubscriptionFromScope(candidates[0].Grant.Scope)
			if subscriptionID == "" {
				return fmt.Errorf("could not determine subscription from the first ledger row")
			}

			mode := removal.DryRun
			if execute {
				if !yes {
					ok, err := confirmRemoval(cmd, len(candidates), subscriptionID)
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
						return nil
					}
				}
				mode = removal.Live
			}

			cred, err := azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return fmt.Errorf("acquire credential: %w", err)
			}
			store, err := azure.NewAuthStore(subscriptionID, cred, logger, nil)
			if err != nil {
				return err
			}

			executor := removal.NewExecutor(store, logger, cfg.MaxRetries, cfg.RetryBaseWait)
			report, err := executor.Execute(cmd.Context(), candidates, mode)
			if err != nil {
				return err
			}

			printRemovalSummary(cmd, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "Input CSV ledger path")
	cmd.Flags().BoolVar(&execute, "execute", false, "Actually delete assignments (default is dry-run)")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the interactive confirmation prompt")

	return cmd
}

// confirmRemoval prompts before a live run. A non-interactive session without
// --yes refuses to delete anything.
func confirmRemoval(cmd *cobra.Command, rows int, subscriptionID string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("refusing to run --execute non-interactively; pass --yes to confirm")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "About to delete %d role assignments in subscription %s. Continue? [y/N]: ", rows, subscriptionID)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func printRemovalSummary(cmd *cobra.Command, report *removal.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Removal pass complete (%s)\n", report.Mode)
	fmt.Fprintf(out, "  attempted:    %d\n", report.Attempted)
	fmt.Fprintf(out, "  succeeded:    %d\n", report.Succeeded)
	fmt.Fprintf(out, "  already gone: %d\n", report.AlreadyGone)
	fmt.Fprintf(out, "  skipped:      %d\n", report.Skipped)
	fmt.Fprintf(out, "  failed:       %d\n", report.Failed)
	for _, f := range report.Failures {
		fmt.Fprintf(out, "    %s (%s, principal %s): %s\n", f.AssignmentID, f.RoleName, f.PrincipalID, f.Reason)
	}
}
