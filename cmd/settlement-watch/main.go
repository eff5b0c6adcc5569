package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"bitbucket.org/mmdatafocus/settlement_backend/feedclient"
	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"github.com/sirupsen/logrus"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "Settlement API base URL.")
	token := flag.String("token", os.Getenv("SETTLEMENT_TOKEN"), "Bearer token (defaults to $SETTLEMENT_TOKEN).")
	from := flag.String("from", "", "Start date (YYYY-MM-DD). Defaults to today.")
	to := flag.String("to", "", "End date (YYYY-MM-DD). Defaults to today.")
	interval := flag.Duration("interval", feedclient.DefaultPollInterval, "Poll interval, clamped to 6s..15s.")
	verification := flag.String("verification-status", "", "Optional verification status filter.")
	reconciliation := flag.String("reconciliation-status", "", "Optional reconciliation status filter.")
	tz := flag.String("tz", "Asia/Yangon", "Timezone of the business day.")
	flag.Parse()

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -tz %q: %v\n", *tz, err)
		os.Exit(2)
	}
	today := utils.TodayIn(loc)
	q := feedclient.SettlementQuery{
		FromDate:             strings.TrimSpace(*from),
		ToDate:               strings.TrimSpace(*to),
		VerificationStatus:   *verification,
		ReconciliationStatus: *reconciliation,
	}
	if q.FromDate == "" {
		q.FromDate = today
	}
	if q.ToDate == "" {
		q.ToDate = today
	}

	logger := config.GetLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := feedclient.NewClient(*baseURL, *token, nil)
	store := feedclient.NewStore[models.SettlementTransaction]()
	printSummary := func() {
		s, err := client.Summary(ctx, q)
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "settlement-watch"}).Warn("summary failed: " + err.Error())
			return
		}
		fmt.Printf("%s rows=%d verified=%d unverified=%d flagged=%d auto=%d manual=%d not_found=%d issues=%d approved=%s pending=%s\n",
			time.Now().In(loc).Format(time.TimeOnly),
			s.Verification.Total, s.Verification.Verified, s.Verification.Unverified, s.Verification.Flagged,
			s.Reconciliation.AutoMatched, s.Reconciliation.ManualMatch, s.Reconciliation.NotFound, s.Reconciliation.Issues,
			s.Amounts.TotalApproved.StringFixed(2), s.Amounts.PendingApproved.StringFixed(2))
	}

	poller := feedclient.NewSettlementPoller(client, q, store, feedclient.PollerOptions{
		Interval: *interval,
		Location: loc,
		Logger:   logger,
		OnUpdate: func(mode feedclient.UpdateMode, added int) {
			if mode == feedclient.UpdateSince && added == 0 {
				return
			}
			fmt.Printf("%s feed: %d new, %d held\n", mode, added, store.Len())
			printSummary()
		},
	})

	if err := poller.Refresh(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "initial load failed: %v\n", err)
		os.Exit(1)
	}
	if poller.RangeElapsed() {
		fmt.Println("range has ended; nothing further to watch")
		return
	}
	fmt.Printf("watching %s..%s every %s\n", q.FromDate, q.ToDate, poller.Interval())
	poller.Run(ctx)
}
