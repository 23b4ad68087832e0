package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roadbook/roadbook/internal/config"
	"github.com/roadbook/roadbook/internal/queue"
)

// QueueEntry is one pending mutation in the queue command's payload.
type QueueEntry struct {
	Position  int    `json:"position"`
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Retries   int    `json:"retries"`
	CreatedAt int64  `json:"created_at"`
}

// QueueReport is the queue command's payload.
type QueueReport struct {
	Pending []QueueEntry `json:"pending"`
}

func (r QueueReport) String() string {
	if len(r.Pending) == 0 {
		return "queue empty"
	}
	var b strings.Builder
	for _, e := range r.Pending {
		fmt.Fprintf(&b, "%3d  %-36s  %-22s  retries=%d  %s\n",
			e.Position, e.ID, e.Kind, e.Retries,
			time.UnixMilli(e.CreatedAt).Format(time.RFC3339))
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List pending mutations",
		Long: `List the mutations waiting in the durable queue, in the order
they will be dispatched.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueue(rootOpts, cmd)
		},
	}
	return cmd
}

func runQueue(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, "failed to load config", err.Error())
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	q, err := queue.Open(cfg.Database.Path)
	if err != nil {
		_ = formatter.Error(ErrCodeQueue, "failed to open mutation queue", err.Error())
		return WrapExitError(ExitCommandError, "failed to open mutation queue", err)
	}
	defer q.Close()

	snapshot, err := q.Snapshot(cmd.Context())
	if err != nil {
		_ = formatter.Error(ErrCodeQueue, "failed to read queue", err.Error())
		return WrapExitError(ExitCommandError, "failed to read queue", err)
	}

	report := QueueReport{Pending: make([]QueueEntry, 0, len(snapshot))}
	for i, m := range snapshot {
		report.Pending = append(report.Pending, QueueEntry{
			Position:  i + 1,
			ID:        m.ID,
			Kind:      m.Kind.String(),
			Retries:   m.RetryCount,
			CreatedAt: m.CreatedAt,
		})
	}
	return formatter.Success(report)
}
