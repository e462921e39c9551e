package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yungbote/studykit-backend/internal/ingestion/manager"
)

func newIngestPendingCommand(svc IngestionRunner, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest-pending",
		Short: "Ingest unprocessed sources across all study kits",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(v, cmd, "limit", "max-concurrency", "collection")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireService(svc); err != nil {
				return err
			}
			summary, err := svc.IngestPending(cmd.Context(), v.GetInt("limit"), v.GetInt("max-concurrency"), v.GetString("collection"))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().Int("limit", manager.DefaultPendingLimit, "maximum number of pending sources to fetch")
	addConcurrencyFlags(cmd)
	return cmd
}

func newIngestKitCommand(svc IngestionRunner, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest-kit <studyKitId>",
		Short: "Ingest the unprocessed sources of one study kit",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(v, cmd, "max-concurrency", "collection")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireService(svc); err != nil {
				return err
			}
			summary, err := svc.IngestStudyKit(cmd.Context(), args[0], v.GetInt("max-concurrency"), v.GetString("collection"))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
	addConcurrencyFlags(cmd)
	return cmd
}

func newStatusCommand(svc IngestionRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show processed and unprocessed source counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireService(svc); err != nil {
				return err
			}
			status, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}
