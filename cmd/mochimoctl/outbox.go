package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mochimo/pkg/mq"
	"mochimo/pkg/outbox"
)

var (
	outboxStatus string
	outboxLimit  int
	replayAll    bool
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and replay outbox events",
}

var outboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List outbox events by status",
	RunE:  runOutboxList,
}

var outboxReplayCmd = &cobra.Command{
	Use:   "replay [event-id]",
	Short: "Republish one event, or every failed event with --failed",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOutboxReplay,
}

func init() {
	outboxListCmd.Flags().StringVar(&outboxStatus, "status", outbox.StatusFailed, "Event status: pending, sent or failed")
	outboxListCmd.Flags().IntVar(&outboxLimit, "limit", 50, "Maximum number of events")
	outboxReplayCmd.Flags().BoolVar(&replayAll, "failed", false, "Replay failed events instead of a single id")
	outboxReplayCmd.Flags().IntVar(&outboxLimit, "limit", 100, "Maximum number of failed events to replay")

	outboxCmd.AddCommand(outboxListCmd, outboxReplayCmd)
}

func runOutboxList(cmd *cobra.Command, args []string) error {
	switch outboxStatus {
	case outbox.StatusPending, outbox.StatusSent, outbox.StatusFailed:
	default:
		return fmt.Errorf("unknown status %q", outboxStatus)
	}

	ctx := cmd.Context()
	_, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	events, err := outbox.NewRepository(pool).ListByStatus(ctx, outboxStatus, outboxLimit)
	if err != nil {
		return err
	}
	return printEvents(cmd.OutOrStdout(), events)
}

func printEvents(w io.Writer, events []*outbox.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "no events")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tROUTING KEY\tAGGREGATE\tRETRIES\tCREATED\tLAST ERROR")
	for _, e := range events {
		aggregate := e.AggregateType
		if e.AggregateID != nil {
			aggregate += "/" + strconv.FormatInt(*e.AggregateID, 10)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.RoutingKey, aggregate, e.RetryCount, e.CreatedAt.Format(time.RFC3339), truncate(e.LastError, 60))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// replayer 由 outbox.ReplayService 实现
type replayer interface {
	ReplayEvent(ctx context.Context, eventID int64) error
	ReplayFailedEvents(ctx context.Context, limit int) (int, error)
}

func runOutboxReplay(cmd *cobra.Command, args []string) error {
	if replayAll == (len(args) == 1) {
		return fmt.Errorf("pass exactly one of an event id or --failed")
	}

	ctx := cmd.Context()
	cfg, pool, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer publisher.Close()

	svc := outbox.NewReplayService(outbox.NewRepository(pool), publisher, log)
	return replay(ctx, cmd.OutOrStdout(), svc, args)
}

func replay(ctx context.Context, w io.Writer, svc replayer, args []string) error {
	if len(args) == 0 {
		n, err := svc.ReplayFailedEvents(ctx, outboxLimit)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "replayed %d failed event(s)\n", n)
		return nil
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid event id %q", args[0])
	}
	if err := svc.ReplayEvent(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(w, "replayed event %d\n", id)
	return nil
}
