package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openvital/vitalstore/internal/engine"
	"github.com/openvital/vitalstore/internal/record"
)

// ReadOptions holds flags for the read command.
type ReadOptions struct {
	*RootOptions
	App       string
	Packages  []string
	Start     int64
	End       int64
	Ascending bool
	PageSize  int
	PageToken int64
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "read <record-type>",
		Short: "Read records of one type",
		Long: `Read health records of one type as a given app.

Rows written by other apps are subject to the configured historic
cutoff; the reading app's own rows are always visible.

Example:
  vitalstore read steps --db ./health.db --app com.example.tracker
  vitalstore read weight --db ./health.db --app com.example.scale --start 1700000000000 --desc`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.App, "app", "", "package name of the reading app (required)")
	cmd.Flags().StringSliceVar(&opts.Packages, "packages", nil, "restrict to records written by these apps")
	cmd.Flags().Int64Var(&opts.Start, "start", -1, "start of the time window in epoch millis")
	cmd.Flags().Int64Var(&opts.End, "end", -1, "end of the time window in epoch millis")
	cmd.Flags().BoolVar(&opts.Ascending, "asc", true, "ascending time order")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "page size (0 uses the configured default)")
	cmd.Flags().Int64Var(&opts.PageToken, "token", engine.NoPageToken, "resume token from a previous page")
	_ = cmd.MarkFlagRequired("app")

	return cmd
}

func runRead(ctx context.Context, opts *ReadOptions, typeName string, cmd *cobra.Command) error {
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
	recs, next, err := env.engine.ReadPaged(ctx, opts.App, engine.ReadRequest{
		RecordType:   d.TypeID,
		PackageNames: opts.Packages,
		TimeRange:    engine.TimeRange{Start: opts.Start, End: opts.End},
		Ascending:    opts.Ascending,
		PageSize:     opts.PageSize,
		PageToken:    opts.PageToken,
	}, engine.ReadOptions{
		HistoricCutoffMillis: env.historicCutoff(nowMillis()),
		RecordAccessLog:      true,
	})
	if err != nil {
		_ = out.Error(errorCode(err), err.Error())
		return WrapExitError(ExitFailure, "read failed", err)
	}

	return out.Success(map[string]any{
		"records":    renderRecords(recs),
		"next_token": next,
		"count":      len(recs),
	})
}

// renderRecords flattens records for output; server-side row ids stay
// internal.
func renderRecords(recs []*record.Record) []map[string]any {
	out := make([]map[string]any, len(recs))
	for i, r := range recs {
		m := map[string]any{
			"uuid":               r.UUID.String(),
			"package":            r.PackageName,
			"last_modified_time": r.LastModifiedTime,
			"payload":            r.Payload,
		}
		if r.ClientRecordID != "" {
			m["client_record_id"] = r.ClientRecordID
		}
		if r.Time != 0 {
			m["time"] = r.Time
		} else {
			m["start_time"] = r.StartTime
			m["end_time"] = r.EndTime
		}
		if len(r.Extra) > 0 {
			m["extra"] = r.Extra
		}
		out[i] = m
	}
	return out
}
