package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/hibiken/asynq"
)

type jobQueue interface {
	TriggerResync(ctx context.Context, quotationID int64) (*asynq.TaskInfo, error)
	TriggerDriftScan(ctx context.Context, limit int) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
}

// CommandOptions configures a quotectl invocation.
type CommandOptions struct {
	Args   []string
	Stdout io.Writer
	Stderr io.Writer
}

const usage = `usage: quotectl <command> [flags]

commands:
  resync --id N        enqueue a pricing re-sync for quotation N
  drift-scan [--limit N] enqueue an immediate drift scan
  queue [--json]       print default queue statistics
`

// Run dispatches a quotectl subcommand and returns the process exit code.
func Run(ctx context.Context, queue jobQueue, opts CommandOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(opts.Args) == 0 {
		_, _ = fmt.Fprint(opts.Stderr, usage)
		return 2
	}

	name, rest := opts.Args[0], opts.Args[1:]
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(opts.Stderr)

	switch name {
	case "resync":
		id := fs.Int64("id", 0, "quotation id")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if *id <= 0 && fs.NArg() > 0 {
			parsed, err := strconv.ParseInt(fs.Arg(0), 10, 64)
			if err == nil {
				*id = parsed
			}
		}
		if *id <= 0 {
			_, _ = fmt.Fprintln(opts.Stderr, "resync: --id is required and must be positive")
			return 1
		}
		info, err := queue.TriggerResync(ctx, *id)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "resync: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s (%s)\n", info.Type, info.ID)
		return 0
	case "drift-scan":
		limit := fs.Int("limit", 0, "maximum quotations to visit")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		info, err := queue.TriggerDriftScan(ctx, *limit)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "drift-scan: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s (%s)\n", info.Type, info.ID)
		return 0
	case "queue":
		asJSON := fs.Bool("json", false, "emit JSON")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		stats, err := queue.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "queue: %v\n", err)
			return 1
		}
		if *asJSON {
			if err := json.NewEncoder(opts.Stdout).Encode(stats); err != nil {
				_, _ = fmt.Fprintf(opts.Stderr, "queue: encode json: %v\n", err)
				return 1
			}
			return 0
		}
		_, _ = fmt.Fprintf(opts.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
		return 0
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "unknown command %q\n%s", name, usage)
		return 2
	}
}
