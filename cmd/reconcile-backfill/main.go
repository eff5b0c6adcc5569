package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"bitbucket.org/mmdatafocus/settlement_backend/workflow"
	"github.com/google/uuid"
)

func main() {
	from := flag.String("from", "", "Start date (YYYY-MM-DD). Defaults to yesterday.")
	to := flag.String("to", "", "End date (YYYY-MM-DD). Defaults to today.")
	checks := flag.Bool("checks", true, "Also run integrity checks over the range and store their reports.")
	skipReconcile := flag.Bool("skip-reconcile", false, "Only run integrity checks.")
	tz := flag.String("tz", "Asia/Yangon", "Timezone used for the default dates.")
	flag.Parse()

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -tz %q: %v\n", *tz, err)
		os.Exit(2)
	}
	start := strings.TrimSpace(*from)
	if start == "" {
		start = time.Now().In(loc).AddDate(0, 0, -1).Format(utils.BusinessDateLayout)
	}
	end := strings.TrimSpace(*to)
	if end == "" {
		end = utils.TodayIn(loc)
	}
	if _, _, err := utils.ValidateDateRange(start, end); err != nil {
		fmt.Fprintf(os.Stderr, "invalid range: %v\n", err)
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "ReconcileBackfill")
	ctx = utils.SetSkipCompanyScopeInContext(ctx, true)

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	failed := false

	if !*skipReconcile {
		fmt.Printf("Reconciling settlements from=%s to=%s\n", start, end)
		res, err := workflow.ReconcileRange(ctx, db, start, end)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
			os.Exit(1)
		}
		_ = out.Encode(res)
		if res.Failed > 0 {
			failed = true
		}
	}

	if *checks {
		fmt.Printf("Running integrity checks from=%s to=%s\n", start, end)
		res, err := models.RunIntegrityChecks(ctx, db, start, end)
		if err != nil {
			fmt.Fprintf(os.Stderr, "integrity checks failed: %v\n", err)
			os.Exit(1)
		}
		_ = out.Encode(res)
		if res.Total() > 0 {
			fmt.Printf("%d integrity findings recorded (correlation_id=%s)\n", res.Total(), res.CorrelationId)
		}
	}

	if failed {
		os.Exit(1)
	}
	fmt.Println("Done.")
}
