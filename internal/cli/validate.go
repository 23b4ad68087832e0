package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roadbook/roadbook/internal/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		Long: `Load the config file and check it against the configuration schema
without starting the client.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := config.Load(opts.Config); err != nil {
		_ = formatter.Error(ErrCodeConfig, "config invalid", err.Error())
		return WrapExitError(ExitCommandError, "config invalid", err)
	}

	return formatter.Success(fmt.Sprintf("%s is valid", opts.Config))
}
