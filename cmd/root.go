// Package cmd is the CLI surface of the workflow reconstructor.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/regraft/api"
	"github.com/agentic-research/regraft/internal/output"
	"github.com/agentic-research/regraft/internal/pysrc"
	"github.com/agentic-research/regraft/internal/transplant"
	"github.com/agentic-research/regraft/internal/validate"
)

// Exit codes per failure category. Warnings do not change the exit code.
const (
	exitOK             = 0
	exitFailure        = 1
	exitParse          = 2
	exitAmbiguous      = 3
	exitSyntaxAfterGen = 4
	exitMissingAttr    = 5
)

var (
	suffixFlag    string
	targetFlag    string
	classNameFlag string
	appNameFlag   string
	modeFlag      string
	rulesFlag     string
	jsonFlag      bool
	verboseFlag   bool
)

func init() {
	rootCmd.Flags().StringVar(&suffixFlag, "suffix", "", "Suffixed mode: append to source basename/class/app-name")
	rootCmd.Flags().StringVar(&targetFlag, "target", "", "NamedVariant mode: new basename (same basename as source degrades to in-place)")
	rootCmd.Flags().StringVar(&classNameFlag, "class-name", "", "Class name for NamedVariant mode (default: source class name)")
	rootCmd.Flags().StringVar(&appNameFlag, "app-name", "", "App name for NamedVariant mode (default: source app name)")
	rootCmd.Flags().StringVar(&modeFlag, "mode", "", "Explicit mode: in-place")
	rootCmd.PersistentFlags().StringVar(&rulesFlag, "rules", "", "Path to an HCL classification rules file")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Emit diagnostics as JSON on stderr")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "Enable debug logging")
}

var rootCmd = &cobra.Command{
	Use:   "regraft TEMPLATE SOURCE",
	Short: "Graft proven workflow components from a source module into a template copy",
	Long: `regraft rebuilds a workflow plugin module: it copies the canonical
template, extracts the source module's workflow-specific methods, custom
route registrations and overridable attributes, grafts them into the copy,
rewrites the class/app-name identifiers, validates the result and writes it
atomically. On success the written path is printed to stdout.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		templatePath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		sourcePath, err := filepath.Abs(args[1])
		if err != nil {
			return err
		}

		mode, err := resolveMode(sourcePath)
		if err != nil {
			return err
		}

		rules, err := loadRules()
		if err != nil {
			return err
		}

		logger, err := buildLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		engine := transplant.New(osfs.New("/"), rules, logger)
		result, err := engine.Run(cmd.Context(), templatePath, sourcePath, mode)
		if err != nil {
			return err
		}

		for _, w := range result.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		fmt.Println(result.Path)
		return nil
	},
}

// resolveMode maps the mutually exclusive mode flags to an output.Mode.
func resolveMode(sourcePath string) (output.Mode, error) {
	set := 0
	for _, s := range []string{suffixFlag, targetFlag, modeFlag} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return output.Mode{}, fmt.Errorf("exactly one of --suffix, --target or --mode must be given")
	}

	switch {
	case suffixFlag != "":
		return output.SuffixedMode(suffixFlag), nil
	case targetFlag != "":
		srcBase := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
		if targetFlag == srcBase {
			return output.InPlaceMode(), nil
		}
		return output.NamedVariantMode(targetFlag, classNameFlag, appNameFlag), nil
	case modeFlag == "in-place":
		return output.InPlaceMode(), nil
	default:
		return output.Mode{}, fmt.Errorf("unknown mode %q (want in-place)", modeFlag)
	}
}

func loadRules() (api.RuleSet, error) {
	if rulesFlag == "" {
		return api.DefaultRuleSet(), nil
	}
	return api.LoadRuleSet(rulesFlag)
}

func buildLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verboseFlag {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// diagnostic is the structured failure report written to stderr.
type diagnostic struct {
	Category string   `json:"category"`
	Members  []string `json:"members,omitempty"`
	Message  string   `json:"message"`
}

// classifyError maps an error to its diagnostic and exit code.
func classifyError(err error) (diagnostic, int) {
	var (
		parseErr   *pysrc.ParseError
		ambErr     *transplant.AmbiguousClassificationError
		synErr     *validate.SyntaxErrorAfterGeneration
		mismatch   *validate.StructuralMismatchError
		missingErr *validate.MissingRequiredAttributeError
	)
	switch {
	case errors.As(err, &ambErr):
		return diagnostic{Category: "AmbiguousClassificationError", Members: ambErr.Names, Message: err.Error()}, exitAmbiguous
	case errors.As(err, &parseErr):
		return diagnostic{Category: "ParseError", Message: err.Error()}, exitParse
	case errors.As(err, &synErr):
		members := []string{}
		if synErr.LastInserted != "" {
			members = append(members, synErr.LastInserted)
		}
		return diagnostic{Category: "SyntaxErrorAfterGeneration", Members: members, Message: err.Error()}, exitSyntaxAfterGen
	case errors.As(err, &mismatch):
		return diagnostic{Category: "StructuralMismatchError", Message: err.Error()}, exitSyntaxAfterGen
	case errors.As(err, &missingErr):
		return diagnostic{Category: "MissingRequiredAttributeError", Members: missingErr.Missing, Message: err.Error()}, exitMissingAttr
	default:
		return diagnostic{Category: "Error", Message: err.Error()}, exitFailure
	}
}

func reportError(err error) int {
	diag, code := classifyError(err)
	if jsonFlag {
		if encoded, jerr := oj.Marshal(&diag); jerr == nil {
			fmt.Fprintln(os.Stderr, string(encoded))
			return code
		}
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", diag.Category, diag.Message)
	return code
}

// Execute runs the root command and exits with the category-specific code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(reportError(err))
	}
	os.Exit(exitOK)
}
