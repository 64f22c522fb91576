package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openvital/vitalstore/internal/record"
)

var categories = map[string]record.Category{
	"activity":          record.CategoryActivity,
	"body_measurements": record.CategoryBodyMeasurements,
	"nutrition":         record.CategoryNutrition,
	"sleep":             record.CategorySleep,
	"vitals":            record.CategoryVitals,
	"wellness":          record.CategoryWellness,
}

// NewPriorityCommand creates the priority command group.
func NewPriorityCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "priority",
		Short: "Manage per-category app priority",
		Long: `Manage the app priority list used by priority-weighted aggregation.

Overlapping intervals of activity, sleep and wellness data resolve
to the highest-priority app; apps absent from the list do not
contribute to weighted sums.`,
	}

	set := &cobra.Command{
		Use:           "set <category> <package>...",
		Short:         "Replace a category's priority list",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrioritySet(cmd.Context(), rootOpts, args[0], args[1:], cmd)
		},
	}

	show := &cobra.Command{
		Use:           "show <category>",
		Short:         "Show a category's priority list",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPriorityShow(cmd.Context(), rootOpts, args[0], cmd)
		},
	}

	cmd.AddCommand(set, show)
	return cmd
}

func parseCategory(name string) (record.Category, error) {
	if c, ok := categories[name]; ok {
		return c, nil
	}
	return record.CategoryUnknown, fmt.Errorf("unknown category %q", name)
}

func runPrioritySet(ctx context.Context, rootOpts *RootOptions, categoryName string, packages []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	category, err := parseCategory(categoryName)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid category", err)
	}

	env, err := openEnv(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer env.close()

	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: rootOpts.Verbose}
	if err := env.engine.SetPriority(ctx, category, packages); err != nil {
		_ = out.Error(errorCode(err), err.Error())
		return WrapExitError(ExitFailure, "failed to set priority", err)
	}
	return out.Success(map[string]any{"category": categoryName, "order": packages})
}

func runPriorityShow(ctx context.Context, rootOpts *RootOptions, categoryName string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	category, err := parseCategory(categoryName)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid category", err)
	}

	env, err := openEnv(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer env.close()

	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: rootOpts.Verbose}
	order, err := env.engine.Priority(ctx, category)
	if err != nil {
		_ = out.Error(errorCode(err), err.Error())
		return WrapExitError(ExitFailure, "failed to read priority", err)
	}
	return out.Success(map[string]any{"category": categoryName, "order": order})
}
