package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewAccessLogCommand creates the access-log command.
func NewAccessLogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "access-log",
		Short: "Show which apps touched the stored data",
		Long: `List the recorded data accesses, newest first.

Every insert, cross-app read and delete leaves one entry naming the
app, the record types touched and the operation. Self-reads are not
recorded.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			env, err := openEnv(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer env.close()

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: rootOpts.Verbose}
			logs, err := env.engine.QueryAccessLogs(ctx)
			if err != nil {
				_ = out.Error(errorCode(err), err.Error())
				return WrapExitError(ExitFailure, "access log query failed", err)
			}

			entries := make([]map[string]any, len(logs))
			for i, l := range logs {
				entries[i] = map[string]any{
					"package":      l.PackageName,
					"record_types": l.RecordTypes,
					"access_time":  l.AccessTime,
					"operation":    l.Operation,
				}
			}
			return out.Success(map[string]any{"entries": entries})
		},
	}
}
