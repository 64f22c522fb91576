package cli

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openvital/vitalstore/internal/engine"
)

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	App       string
	UUIDs     []string
	ClientIDs []string
	Packages  []string
	Start     int64
	End       int64
	Elevated  bool
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <record-type>",
		Short: "Delete records by id or by filter",
		Long: `Delete health records of one type.

With --uuid or --client-id the named records are deleted; without
either, every record matching the package and time filters goes.
A non-elevated caller can only delete its own records, and a single
foreign row fails the whole call with nothing deleted.

Example:
  vitalstore delete steps --db ./health.db --app com.example.tracker --client-id morning-walk
  vitalstore delete steps --db ./health.db --app com.example.tracker --end 1690000000000`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.App, "app", "", "package name of the calling app (required)")
	cmd.Flags().StringSliceVar(&opts.UUIDs, "uuid", nil, "record uuids to delete")
	cmd.Flags().StringSliceVar(&opts.ClientIDs, "client-id", nil, "client record ids to delete")
	cmd.Flags().StringSliceVar(&opts.Packages, "packages", nil, "filter: records written by these apps")
	cmd.Flags().Int64Var(&opts.Start, "start", -1, "filter: start of the time window in epoch millis")
	cmd.Flags().Int64Var(&opts.End, "end", -1, "filter: end of the time window in epoch millis")
	cmd.Flags().BoolVar(&opts.Elevated, "elevated", false, "skip the per-record ownership check")
	_ = cmd.MarkFlagRequired("app")

	return cmd
}

func runDelete(ctx context.Context, opts *DeleteOptions, typeName string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.close()

	d, err := env.engine.Registry().ByName(typeName)
	if err != nil {
		return WrapExitError(ExitCommandError, "unknown record type", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	var deleted int64
	if len(opts.UUIDs) > 0 || len(opts.ClientIDs) > 0 {
		var filters []engine.IDFilter
		for _, raw := range opts.UUIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid uuid "+raw, err)
			}
			filters = append(filters, engine.IDFilter{RecordType: d.TypeID, UUID: id})
		}
		for _, clientID := range opts.ClientIDs {
			filters = append(filters, engine.IDFilter{RecordType: d.TypeID, ClientRecordID: clientID})
		}
		deleted, err = env.engine.DeleteByIDs(ctx, opts.App, filters, opts.Elevated, true)
	} else {
		deleted, err = env.engine.DeleteByFilter(ctx, opts.App, engine.DeleteFilter{
			RecordTypes:  []int{d.TypeID},
			PackageNames: opts.Packages,
			TimeRange:    engine.TimeRange{Start: opts.Start, End: opts.End},
		}, opts.Elevated, true)
	}
	if err != nil {
		_ = out.Error(errorCode(err), err.Error())
		return WrapExitError(ExitFailure, "delete failed", err)
	}
	return out.Success(map[string]any{"deleted": deleted})
}
