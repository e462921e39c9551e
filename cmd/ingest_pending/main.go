package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/yungbote/studykit-backend/internal/app"
	"github.com/yungbote/studykit-backend/internal/ingestion/manager"
	"github.com/yungbote/studykit-backend/internal/platform/envutil"
	"github.com/yungbote/studykit-backend/internal/platform/shutdown"
)

// One-shot ingestion of every pending source, for cron or a job runner.
func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	limit := envutil.Int("INGEST_PENDING_LIMIT", manager.DefaultPendingLimit)
	summary, err := a.Services.Ingestion.IngestPending(ctx, limit, a.Cfg.IngestMaxConcurrency, "")
	if err != nil {
		a.Log.Error("ingest pending failed", "error", err)
		return
	}
	a.Log.Info("ingest pending finished",
		"total", summary.TotalSources,
		"processed", summary.Processed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
}
