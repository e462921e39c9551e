package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yungbote/studykit-backend/internal/ingestion/manager"
)

// EnvPrefix namespaces the environment overrides, e.g. STUDYKIT_LIMIT.
const EnvPrefix = "STUDYKIT"

type IngestionRunner interface {
	IngestPending(ctx context.Context, limit, maxConcurrency int, collection string) (*manager.PendingSummary, error)
	IngestStudyKit(ctx context.Context, studyKitID string, maxConcurrency int, collection string) (*manager.StudyKitSummary, error)
	Status(ctx context.Context) (*manager.StatusSummary, error)
}

// NewRootCommand builds the studykitctl command tree. Flags are read through
// a viper instance so each one can also come from the environment.
func NewRootCommand(svc IngestionRunner) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("limit", manager.DefaultPendingLimit)
	v.SetDefault("max-concurrency", manager.DefaultMaxConcurrency)
	v.SetDefault("collection", "")

	root := &cobra.Command{
		Use:           "studykitctl",
		Short:         "Operate the study kit ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newIngestPendingCommand(svc, v),
		newIngestKitCommand(svc, v),
		newStatusCommand(svc),
	)
	return root
}

// bindFlags runs at execution time so subcommands sharing a flag name do
// not overwrite each other's binding.
func bindFlags(v *viper.Viper, cmd *cobra.Command, names ...string) error {
	for _, name := range names {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

func addConcurrencyFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-concurrency", manager.DefaultMaxConcurrency, "maximum sources processed at once")
	cmd.Flags().String("collection", "", "vector collection name (default: configured collection)")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireService(svc IngestionRunner) error {
	if svc == nil {
		return fmt.Errorf("ingestion service not initialized")
	}
	return nil
}
