// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"io"
	"os"

	"github.com/awslabs/adg-policy/analysis"
	"github.com/awslabs/adg-policy/analysis/config"
	"github.com/awslabs/adg-policy/analysis/resolver"
	"github.com/awslabs/adg-policy/internal/formatutil"
	"github.com/spf13/cobra"
)

var (
	configPath string
	outPath    string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:           "adgpolicy",
		Short:         "Information-flow policies for serverless applications",
		Version:       analysis.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Build the dependency graph and write the policy specification of its edges",
		Args:  cobra.NoArgs,
		RunE:  runAnalyze,
	}

	enforceCmd = &cobra.Command{
		Use:   "enforce",
		Short: "Resolve the policy specification and write the instrumented functions",
		Args:  cobra.NoArgs,
		RunE:  runEnforce,
	}

	renderCmd = &cobra.Command{
		Use:   "render",
		Short: "Print the dependency graph in Graphviz DOT format",
		Args:  cobra.NoArgs,
		RunE:  runRender,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	renderCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(analyzeCmd, enforceCmd, renderCmd)
}

func loadConfig() (*config.Config, *config.LogGroup, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbose && cfg.LogLevel < int(config.DebugLevel) {
		cfg.LogLevel = int(config.DebugLevel)
	}
	return cfg, config.NewLogGroup(cfg), nil
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := analysis.Analyze(cmd.Context(), cfg, logger); err != nil {
		return err
	}
	logger.Infof("Edit %s and run `adgpolicy enforce`", formatutil.Bold(cfg.PolicySpecPath))
	return nil
}

func runEnforce(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	res, err := analysis.Enforce(cmd.Context(), cfg, logger)
	if res != nil {
		printVerdicts(cmd.OutOrStdout(), res.Verdicts)
	}
	return err
}

func printVerdicts(w io.Writer, verdicts []resolver.Verdict) {
	for _, v := range verdicts {
		var status string
		switch v.Status {
		case resolver.Pass:
			status = formatutil.Green(v.Status)
		case resolver.Fail:
			status = formatutil.Red(v.Status)
		default:
			status = formatutil.Yellow(v.Status)
		}
		fmt.Fprintf(w, "%-6s %-5s %s\n", status, v.Direction, v.Edge)
		if v.Status == resolver.Assert {
			fmt.Fprintf(w, "       at %s: %s\n", v.Position(), v.Residual)
		}
		for _, d := range v.Diagnostics {
			fmt.Fprintf(w, "       %s\n", formatutil.Faint(d))
		}
	}
}

func runRender(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("could not create %s: %w", outPath, err)
		}
		defer f.Close()
		w = f
	} else {
		// keep the DOT output clean
		logger.SetAllOutput(os.Stderr)
	}
	return analysis.Render(cmd.Context(), cfg, logger, w)
}
