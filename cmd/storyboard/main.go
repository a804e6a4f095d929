/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gostoryboard/internal/crash"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/version"
)

func main() {
	// initialize structured logging using environment defaults; the config
	// file may refine it once loaded
	applog.Init(applog.FromEnv())

	a := &app{out: os.Stdout}
	defer a.close()
	defer crash.Recover(&a.rescue)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		a.close()
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "storyboard",
		Short: "Generate, edit and export scene-based storyboards and comics",
		Long: `storyboard keeps a library of projects made of scenes. Each scene can
carry a generated image, narration audio and a short video. Projects are
exported as comic pages, one long storyboard image, a PDF document or a
zip archive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.loadConfig()
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default is $GSB_CONFIG or the per-user config.yaml)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite library file; overrides storage settings")
	root.PersistentFlags().StringVar(&a.backendArg, "backend", "", `generation backend: "http" or "placeholder"`)

	root.AddCommand(
		newVersionCmd(),
		newNewCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newDeleteCmd(a),
		newGenerateCmd(a),
		newRegenerateCmd(a),
		newModifyCmd(a),
		newEditCmd(a),
		newUndoCmd(a),
		newRedoCmd(a),
		newHistoryCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newSaveFileCmd(a),
		newCheckCmd(a),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
