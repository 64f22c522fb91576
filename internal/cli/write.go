package cli

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openvital/vitalstore/internal/engine"
)

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	return newWriteCommand(rootOpts, "insert", "Insert records from a YAML file",
		`Insert health records on behalf of an app.

The records file names the writing app and the records to store:

  app: com.example.tracker
  records:
    - type: steps
      client_record_id: morning-walk
      start_time: 1700000000000
      end_time: 1700003600000
      payload: {count: 4200}

Example:
  vitalstore insert --db ./health.db ./records.yaml`, false)
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return newWriteCommand(rootOpts, "update", "Update records from a YAML file",
		`Update existing health records in place.

Each record must carry a client_record_id so it resolves to its
stored identity. Updating a record another app owns fails without
touching anything.

Example:
  vitalstore update --db ./health.db ./records.yaml`, true)
}

func newWriteCommand(rootOpts *RootOptions, name, short, long string, update bool) *cobra.Command {
	return &cobra.Command{
		Use:           name + " <records.yaml>",
		Short:         short,
		Long:          long,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd.Context(), rootOpts, args[0], update, cmd)
		},
	}
}

func runWrite(ctx context.Context, rootOpts *RootOptions, path string, update bool, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := openEnv(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer env.close()

	app, records, err := loadRecordsFile(path, env.engine.Registry())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load records", err)
	}

	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: rootOpts.Verbose}
	out.VerboseLog("writing %d records for %s", len(records), app)

	var ids []uuid.UUID
	if update {
		ids, err = env.engine.Update(ctx, app, records)
	} else {
		ids, err = env.engine.Insert(ctx, app, records)
	}
	if err != nil {
		_ = out.Error(errorCode(err), err.Error())
		return WrapExitError(ExitFailure, "write failed", err)
	}

	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return out.Success(map[string]any{"app": app, "uuids": strs})
}

// errorCode maps engine errors onto the response code field.
func errorCode(err error) string {
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	return "INTERNAL"
}
