package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"rolesweep/internal/azure"
	"rolesweep/internal/config"
	"rolesweep/internal/ledger"
	"rolesweep/internal/scan"
)

func newGenerateCmd(profile *string) *cobra.Command {
	var (
		subscriptionID string
		csvPath        string
		blobURL        string
		concurrency    int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Scan a subscription and write duplicate assignments to a CSV ledger",
		Long:  "Scans the subscription's role assignments, expands group memberships\n(including nested groups), and writes every direct user assignment already\ncovered by a group assignment for the same role at the same scope.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := resolveProfile(*profile)
			subscriptionID = firstNonEmpty(subscriptionID, os.Getenv("ROLESWEEP_SUBSCRIPTION_ID"), p.SubscriptionID)
			blobURL = firstNonEmpty(blobURL, os.Getenv("ROLESWEEP_BLOB_URL"), p.BlobURL)

			if subscriptionID == "" {
				return fmt.Errorf("--subscription-id is required (flag, ROLESWEEP_SUBSCRIPTION_ID, or profile)")
			}
			if _, err := uuid.Parse(subscriptionID); err != nil {
				return fmt.Errorf("subscription id %q is not a valid GUID", subscriptionID)
			}
			if csvPath == "" {
				return fmt.Errorf("--csv is required")
			}

			cfg := config.LoadFromEnv()
			if concurrency > 0 {
				cfg.Concurrency = concurrency
			}
			logger := newLogger(cfg)

			cred, err := azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return fmt.Errorf("acquire credential: %w", err)
			}

			store, err := azure.NewAuthStore(subscriptionID, cred, logger, nil)
			if err != nil {
				return err
			}
			dir := azure.NewDirectory(cred, logger, azure.DirectoryOptions{
				Endpoint: cfg.GraphEndpoint,
				RPS:      cfg.RateLimitRPS,
				Burst:    cfg.RateLimitBurst,
			})

			scanner := scan.NewScanner(store, dir, logger, cfg.Concurrency, cfg.MaxRetries, cfg.RetryBaseWait)
			res, err := scanner.Scan(cmd.Context(), "/subscriptions/"+subscriptionID)
			if err != nil {
				return err
			}

			l := ledger.New(logger)
			if err := l.Write(res.Candidates, csvPath); err != nil {
				return err
			}
			if blobURL != "" {
				uploader := ledger.NewBlobUploader(cred, logger)
				if err := uploader.Upload(cmd.Context(), blobURL, csvPath); err != nil {
					return err
				}
			}

			printScanSummary(cmd, res, csvPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&subscriptionID, "subscription-id", "", "Azure subscription to scan")
	cmd.Flags().StringVar(&csvPath, "csv", "", "Output CSV ledger path")
	cmd.Flags().StringVar(&blobURL, "blob-url", "", "Optional blob URL to upload the written ledger to")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Group expansion worker limit (overrides ROLESWEEP_CONCURRENCY)")

	return cmd
}

func printScanSummary(cmd *cobra.Command, res *scan.Result, csvPath string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scan of %s complete in %s\n", res.Summary.Scope, res.Summary.Elapsed.Round(summaryRounding))
	fmt.Fprintf(out, "  roles scanned:    %d\n", res.Summary.RolesScanned)
	fmt.Fprintf(out, "  groups expanded:  %d\n", res.Summary.GroupsExpanded)
	fmt.Fprintf(out, "  candidates found: %d\n", res.Summary.CandidatesFound)
	if len(res.Summary.PartialGroups) > 0 {
		fmt.Fprintf(out, "  partially expanded groups (%d members skipped): %s\n",
			res.Summary.MembersSkipped, strings.Join(res.Summary.PartialGroups, ", "))
	}
	if res.Summary.CandidatesFound == 0 {
		fmt.Fprintln(out, "No duplicated role assignments found.")
		return
	}
	fmt.Fprintf(out, "Ledger written to %s. Review it before running 'rolesweep remove'.\n", csvPath)
}
