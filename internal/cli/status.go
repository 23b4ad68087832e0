package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roadbook/roadbook/internal/config"
	"github.com/roadbook/roadbook/internal/queue"
)

// StatusReport is the status command's payload.
type StatusReport struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Pending    int    `json:"pending"`
	LastSyncAt int64  `json:"last_sync_at,omitempty"`
}

func (r StatusReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "status:  %s\n", r.Status)
	if r.Message != "" {
		fmt.Fprintf(&b, "message: %s\n", r.Message)
	}
	fmt.Fprintf(&b, "pending: %d\n", r.Pending)
	if r.LastSyncAt != 0 {
		fmt.Fprintf(&b, "last sync: %s", time.UnixMilli(r.LastSyncAt).Format(time.RFC3339))
	} else {
		fmt.Fprint(&b, "last sync: never")
	}
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted sync status",
		Long: `Show the sync status persisted in the mutation queue database:
the last recorded state, its message, the number of pending changes, and the
time of the last successful sync.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
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

	ctx := cmd.Context()
	report := StatusReport{}

	if report.Status, err = q.LoadStatus(ctx); err != nil {
		_ = formatter.Error(ErrCodeQueue, "failed to read sync state", err.Error())
		return WrapExitError(ExitCommandError, "failed to read sync state", err)
	}
	if report.Status == "" {
		report.Status = "idle"
	}
	if report.Message, err = q.LoadMessage(ctx); err != nil {
		_ = formatter.Error(ErrCodeQueue, "failed to read sync state", err.Error())
		return WrapExitError(ExitCommandError, "failed to read sync state", err)
	}
	if report.LastSyncAt, err = q.LoadLastSyncAt(ctx); err != nil {
		_ = formatter.Error(ErrCodeQueue, "failed to read sync state", err.Error())
		return WrapExitError(ExitCommandError, "failed to read sync state", err)
	}
	if report.Pending, err = q.Len(ctx); err != nil {
		_ = formatter.Error(ErrCodeQueue, "failed to read sync state", err.Error())
		return WrapExitError(ExitCommandError, "failed to read sync state", err)
	}

	return formatter.Success(report)
}
