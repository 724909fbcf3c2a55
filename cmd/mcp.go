package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/agentic-research/regraft/internal/output"
	"github.com/agentic-research/regraft/internal/transplant"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the transplant operation as an MCP tool over stdio",
	Long: `Starts a Model Context Protocol server on stdin/stdout exposing a
single "transplant" tool, so coding agents can invoke the workflow
reconstructor without shelling out.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		s := server.NewMCPServer("regraft", "1.0.0", server.WithToolCapabilities(false))
		s.AddTool(transplantTool(), transplantHandler(engine))
		return server.ServeStdio(s)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func transplantTool() mcp.Tool {
	return mcp.NewTool("transplant",
		mcp.WithDescription("Graft workflow-specific methods, custom routes and overridable attributes from a source plugin module into a copy of the template module, then validate and write the result."),
		mcp.WithString("template", mcp.Required(), mcp.Description("Path of the template module")),
		mcp.WithString("source", mcp.Required(), mcp.Description("Path of the source module")),
		mcp.WithString("suffix", mcp.Description("Suffixed mode: token appended to basename/class/app-name")),
		mcp.WithString("target", mcp.Description("NamedVariant mode: new basename; equal to the source basename degrades to in-place")),
		mcp.WithString("class_name", mcp.Description("Class name for NamedVariant mode")),
		mcp.WithString("app_name", mcp.Description("App name for NamedVariant mode")),
		mcp.WithString("mode", mcp.Description("Explicit mode: in-place")),
	)
}

func transplantHandler(engine *transplant.Engine) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		templatePath, err := request.RequireString("template")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		sourcePath, err := request.RequireString("source")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if templatePath, err = filepath.Abs(templatePath); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if sourcePath, err = filepath.Abs(sourcePath); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		mode, err := toolMode(request, sourcePath)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := engine.Run(ctx, templatePath, sourcePath, mode)
		if err != nil {
			diag, _ := classifyError(err)
			return mcp.NewToolResultError(fmt.Sprintf("%s: %s", diag.Category, diag.Message)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "wrote %s (class %s, app %s)", result.Path, result.ClassName, result.AppName)
		for _, w := range result.Warnings {
			fmt.Fprintf(&b, "\nwarning: %s", w)
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func toolMode(request mcp.CallToolRequest, sourcePath string) (output.Mode, error) {
	suffix := request.GetString("suffix", "")
	target := request.GetString("target", "")
	mode := request.GetString("mode", "")

	set := 0
	for _, s := range []string{suffix, target, mode} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return output.Mode{}, fmt.Errorf("exactly one of suffix, target or mode must be given")
	}

	switch {
	case suffix != "":
		return output.SuffixedMode(suffix), nil
	case target != "":
		srcBase := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
		if target == srcBase {
			return output.InPlaceMode(), nil
		}
		return output.NamedVariantMode(target, request.GetString("class_name", ""), request.GetString("app_name", "")), nil
	case mode == "in-place":
		return output.InPlaceMode(), nil
	default:
		return output.Mode{}, fmt.Errorf("unknown mode %q (want in-place)", mode)
	}
}
