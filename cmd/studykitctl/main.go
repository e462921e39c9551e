package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/studykit-backend/internal/app"
	"github.com/yungbote/studykit-backend/internal/cli"
	"github.com/yungbote/studykit-backend/internal/platform/shutdown"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing studykitctl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := shutdown.NotifyContext(context.Background())
	err = cli.NewRootCommand(a.Services.Ingestion).ExecuteContext(ctx)
	stop()
	a.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
