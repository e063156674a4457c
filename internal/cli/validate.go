package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/cobra"

	"github.com/roach88/trigsync/internal/config"
	"github.com/roach88/trigsync/internal/source"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Feed string
}

// ValidationError is one problem found in a config or feed.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Config config.Config     `json:"config"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [config]",
		Short: "Validate a configuration and optionally a feed",
		Long: `Validate synchronizer configuration without running anything.

The config file (.yaml, .yml or .cue) is layered over the defaults, then
TRIGSYNC_* environment variables are applied, and the result is checked
against the configuration schema and the driver's range rules. With no
config argument only the defaults and environment are checked.

--feed additionally checks a feed file: source names, categories, the
reference designation and packet definitions.

Examples:
  trigsync validate ./config.yaml
  trigsync validate ./config.cue --feed ./feed.yaml
  TRIGSYNC_POOL_DEPTH=0 trigsync validate --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(opts, path, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Feed, "feed", "", "feed file to validate as well")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	result := ValidationResult{Valid: true}

	formatter.VerboseLog("Loading config %q", path)
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("config not found: %s", path), nil)
			return WrapExitError(ExitCommandError, "config not found", err)
		}
		result.Errors = append(result.Errors, configErrors(err)...)
	} else {
		result.Config = cfg
	}

	if opts.Feed != "" {
		formatter.VerboseLog("Loading feed %q", opts.Feed)
		feed, err := source.LoadFeed(opts.Feed)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("feed not found: %s", opts.Feed), nil)
			return WrapExitError(ExitCommandError, "feed not found", err)
		case err != nil:
			result.Errors = append(result.Errors, ValidationError{
				Field:   "feed",
				Message: err.Error(),
				Code:    ErrCodeFeed,
			})
		default:
			formatter.VerboseLog("Feed has %d source(s), %d event number(s)", len(feed.Sources), len(feed.EventNumbers()))
		}
	}

	result.Valid = len(result.Errors) == 0
	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    result.Errors[0].Code,
				Message: fmt.Sprintf("%d validation error(s)", len(result.Errors)),
				Details: result.Errors,
			}
		}
		if err := formatter.Respond(resp); err != nil {
			return err
		}
	} else {
		writeValidationText(formatter, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(result.Errors)))
	}
	return nil
}

// configErrors splits a config error into one entry per schema violation.
func configErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		out = append(out, ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: e.Error(),
			Code:    ErrCodeConfig,
		})
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Message: err.Error(), Code: ErrCodeConfig})
	}
	return out
}

func writeValidationText(f *OutputFormatter, result ValidationResult) {
	if result.Valid {
		_ = f.Success("✓ Configuration valid")
		return
	}
	for _, e := range result.Errors {
		if e.Field != "" {
			_ = f.Error(e.Code, fmt.Sprintf("%s: %s", e.Field, e.Message), nil)
			continue
		}
		_ = f.Error(e.Code, e.Message, nil)
	}
}
