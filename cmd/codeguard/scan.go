package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/codeguard/internal/report"
	"github.com/dshills/codeguard/internal/scanner"
	"github.com/dshills/codeguard/pkg/types"
)

type scanFlags struct {
	output  string
	format  string
	branch  string
	include []string
	exclude []string
	files   []string
}

func newScanCmd() *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:   "scan TARGET",
		Short: "Scan a git URL or local directory and print a report",
		Long: `Scan a repository and write the report to stdout or --output.

A TARGET starting with http://, https:// or git@ is cloned; anything else is
treated as a local directory. A summary is printed to stderr and the command
exits non-zero when the scan fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "json", "Report format: json, sarif or markdown")
	cmd.Flags().StringVarP(&flags.branch, "branch", "b", "", "Branch to clone (URL targets only)")
	cmd.Flags().StringArrayVarP(&flags.include, "include", "i", nil, "Glob a file must match (repeatable)")
	cmd.Flags().StringArrayVarP(&flags.exclude, "exclude", "e", nil, "Glob that excludes files (repeatable)")
	cmd.Flags().StringSliceVar(&flags.files, "files", nil, "Restrict the scan to these relative paths")
	return cmd
}

func runScan(cmd *cobra.Command, target string, flags scanFlags) error {
	format, err := report.ParseFormat(flags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctrl, err := scanner.NewFromConfig(cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.Close() }()

	req := types.ScanRequest{
		Branch:          flags.branch,
		FilePaths:       flags.files,
		IncludePatterns: flags.include,
		ExcludePatterns: flags.exclude,
	}
	if isURL(target) {
		req.RepositoryURL = target
	} else {
		req.RepositoryPath = target
	}

	// Ctrl-C cancels the scan, which still reports partial issues
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := ctrl.Run(ctx, req)
	if err != nil {
		return err
	}

	if err := writeReport(cmd.OutOrStdout(), flags.output, format, res); err != nil {
		return err
	}
	printSummary(cmd.ErrOrStderr(), res)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = ctrl.Shutdown(shutdownCtx)

	if res.Status != types.StatusCompleted {
		return fmt.Errorf("scan %s failed: %s", res.ScanID, res.Error)
	}
	return nil
}

func writeReport(stdout io.Writer, path string, format report.Format, res *types.ScanResult) error {
	if path == "" {
		return report.Write(stdout, format, res)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := report.Write(f, format, res); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func isURL(target string) bool {
	for _, prefix := range []string{"http://", "https://", "git@"} {
		if strings.HasPrefix(target, prefix) {
			return true
		}
	}
	return false
}
