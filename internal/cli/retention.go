package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/openvital/vitalstore/internal/prefs"
	"github.com/openvital/vitalstore/internal/store"
)

// NewRetentionCommand creates the retention command group.
func NewRetentionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Configure and run data retention",
		Long: `Manage the auto-delete retention period.

"retention set" stores the retention period in days (0 disables it).
"retention run" executes one retention pass: record data older than
the period is deleted with change logs, and stale change and access
logs are trimmed.`,
	}

	set := &cobra.Command{
		Use:           "set <days>",
		Short:         "Set the retention period in days",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetentionSet(cmd.Context(), rootOpts, args[0], cmd)
		},
	}

	run := &cobra.Command{
		Use:           "run",
		Short:         "Execute one retention pass",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetentionPass(cmd.Context(), rootOpts, cmd)
		},
	}

	cmd.AddCommand(set, run)
	return cmd
}

func runRetentionSet(ctx context.Context, rootOpts *RootOptions, raw string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 0 {
		return WrapExitError(ExitCommandError, "retention days must be a non-negative integer", err)
	}

	env, err := openEnv(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer env.close()

	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: rootOpts.Verbose}
	err = env.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		return prefs.SetRetentionDays(ctx, tx, days)
	})
	if err != nil {
		_ = out.Error("STORAGE_FAILURE", err.Error())
		return WrapExitError(ExitFailure, "failed to set retention", err)
	}
	return out.Success(map[string]any{"retention_days": days})
}

func runRetentionPass(ctx context.Context, rootOpts *RootOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := openEnv(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer env.close()

	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: rootOpts.Verbose}
	deleted, err := env.engine.AutoDelete(ctx)
	if err != nil {
		_ = out.Error(errorCode(err), err.Error())
		return WrapExitError(ExitFailure, "retention pass failed", err)
	}
	return out.Success(map[string]any{"deleted": deleted})
}
