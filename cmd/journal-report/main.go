// Command journal-report prints the recent receipt ingestion attempts of a
// user from the local journal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"ledger/internal/cli"
	applog "ledger/internal/log"
	"ledger/internal/storage"
)

func main() {
	userID := flag.Int64("user", 0, "user id to report on (required)")
	limit := flag.Int("limit", 20, "number of attempts to list")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))

	dbPath := os.Getenv("JOURNAL_DB_PATH")
	if dbPath == "" || *userID <= 0 {
		fmt.Fprintln(os.Stderr, "usage: JOURNAL_DB_PATH=... journal-report -user ID [-limit N]")
		os.Exit(2)
	}

	journal := cli.InitJournal(logger, dbPath)
	defer journal.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counts, err := journal.CountByStatus(ctx, *userID)
	if err != nil {
		logger.Error("Failed to count attempts", applog.FieldError, err, applog.FieldUserID, *userID)
		os.Exit(1)
	}
	attempts, err := journal.ListRecent(ctx, *userID, *limit)
	if err != nil {
		logger.Error("Failed to list attempts", applog.FieldError, err, applog.FieldUserID, *userID)
		os.Exit(1)
	}

	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "User %d\n", *userID)
	for _, s := range statuses {
		fmt.Fprintf(tw, "  %s\t%d\n", s, counts[s])
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "STARTED\tFILE\tSTATUS\tSTAGE\tPROCESS TRIES\tMESSAGE")
	for _, a := range attempts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			a.StartedAt.Format(time.DateTime), a.FileName, a.Status, a.Stage, a.ProcessAttempts, a.Message)
	}
	if err := tw.Flush(); err != nil {
		logger.Error("Failed to write report", applog.FieldError, err)
		os.Exit(1)
	}
}
