package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openvital/vitalstore/internal/engine"
)

// ChangesOptions holds flags for the changes subcommands.
type ChangesOptions struct {
	*RootOptions
	App      string
	Types    []string
	Packages []string
	Token    string
	PageSize int
}

// NewChangesCommand creates the changes command group.
func NewChangesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChangesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Follow the change stream",
		Long: `Register for and consume the record change stream.

"changes token" registers a consumer and prints the token marking the
current end of the stream. "changes get" returns everything recorded
after a token, newest entries last, together with the token to resume
from.`,
	}

	token := &cobra.Command{
		Use:           "token",
		Short:         "Register a consumer and get its starting token",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChangesToken(cmd.Context(), opts, cmd)
		},
	}
	token.Flags().StringVar(&opts.App, "app", "", "package name of the consuming app (required)")
	token.Flags().StringSliceVar(&opts.Types, "types", nil, "record types to follow (required)")
	token.Flags().StringSliceVar(&opts.Packages, "packages", nil, "restrict to changes written by these apps")
	_ = token.MarkFlagRequired("app")
	_ = token.MarkFlagRequired("types")

	get := &cobra.Command{
		Use:           "get",
		Short:         "Read changes recorded after a token",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChangesGet(cmd.Context(), opts, cmd)
		},
	}
	get.Flags().StringVar(&opts.Token, "token", "", "change token to resume from (required)")
	get.Flags().IntVar(&opts.PageSize, "page-size", 0, "page size (0 uses the configured default)")
	_ = get.MarkFlagRequired("token")

	cmd.AddCommand(token, get)
	return cmd
}

func runChangesToken(ctx context.Context, opts *ChangesOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.close()

	typeIDs := make([]int, len(opts.Types))
	for i, name := range opts.Types {
		d, err := env.engine.Registry().ByName(name)
		if err != nil {
			return WrapExitError(ExitCommandError, "unknown record type", err)
		}
		typeIDs[i] = d.TypeID
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	token, err := env.engine.GetChangeLogToken(ctx, opts.App, typeIDs, opts.Packages)
	if err != nil {
		_ = out.Error(errorCode(err), err.Error())
		return WrapExitError(ExitFailure, "token request failed", err)
	}
	return out.Success(map[string]any{"token": token})
}

func runChangesGet(ctx context.Context, opts *ChangesOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.close()

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	page, err := env.engine.GetChanges(ctx, opts.Token, opts.PageSize)
	if err != nil {
		_ = out.Error(errorCode(err), err.Error())
		return WrapExitError(ExitFailure, "get changes failed", err)
	}

	changes := make([]map[string]any, len(page.Changes))
	for i, c := range page.Changes {
		op := "upsert"
		if c.Operation == engine.OpDelete {
			op = "delete"
		}
		changes[i] = map[string]any{
			"record_type": c.RecordType,
			"package":     c.PackageName,
			"uuid":        c.UUID.String(),
			"operation":   op,
			"time":        c.Time,
		}
	}
	return out.Success(map[string]any{
		"changes":    changes,
		"next_token": page.NextToken,
		"has_more":   page.HasMore,
	})
}
