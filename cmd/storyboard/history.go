/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gostoryboard/internal/generate"
	"gostoryboard/internal/history"
)

func newEditCmd(a *app) *cobra.Command {
	var (
		text, directive string
		tags            []string
	)
	cmd := &cobra.Command{
		Use:   "edit <project-id> <scene-id>",
		Short: "Change the text, directive or tags of a scene",
		Long: `Change a scene's fields. Every edit is one undo step labelled
"edited scene N". Artifacts are left alone; regenerate them afterwards.

Example:
  storyboard edit 3f1c... 2 --text "Fog rolls in." --directive "wide shot, low sun"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSceneID(args[1])
			if err != nil {
				return err
			}
			var patch history.ScenePatch
			f := cmd.Flags()
			if f.Changed("text") {
				patch.Text = &text
			}
			if f.Changed("directive") {
				patch.Directive = &directive
			}
			if f.Changed("tag") {
				patch.Tags = &tags
			}
			if patch == (history.ScenePatch{}) {
				return errors.New("nothing to change: use --text, --directive or --tag")
			}
			return a.moveHistory(cmd, args[0], func(s *history.Store) error {
				if _, ok := s.Current().Scene(id); !ok {
					return fmt.Errorf("%w: %d", generate.ErrUnknownScene, id)
				}
				s.UpdateScene(id, patch, true, "")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "new scene text")
	cmd.Flags().StringVar(&directive, "directive", "", "new visual directive")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "replace the scene tags; repeatable")
	return cmd
}

func newUndoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "undo <project-id>",
		Short: "Step back one entry in the project history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.moveHistory(cmd, args[0], func(s *history.Store) error {
				if !s.CanUndo() {
					return errors.New("nothing to undo")
				}
				s.Undo()
				return nil
			})
		},
	}
}

func newRedoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "redo <project-id>",
		Short: "Step forward one entry in the project history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.moveHistory(cmd, args[0], func(s *history.Store) error {
				if !s.CanRedo() {
					return errors.New("nothing to redo")
				}
				s.Redo()
				return nil
			})
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var jump int
	cmd := &cobra.Command{
		Use:   "history <project-id>",
		Short: "List the project history or jump to an entry",
		Long: `List the undo history of a project, oldest first. The current entry is
marked with "*". --jump N makes entry N current; a later edit drops every
entry after it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("jump") {
				s, err := a.load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printHistory(cmd.OutOrStdout(), s.store)
			}
			return a.moveHistory(cmd, args[0], func(s *history.Store) error {
				if jump < 0 || jump >= s.Len() {
					return fmt.Errorf("history entry %d out of range 0..%d", jump, s.Len()-1)
				}
				s.JumpTo(jump)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&jump, "jump", 0, "entry index to make current")
	return cmd
}

// moveHistory loads a project, applies fn to its store and saves the result
// together with the history, then prints the history.
func (a *app) moveHistory(cmd *cobra.Command, projectID string, fn func(*history.Store) error) error {
	ctx := cmd.Context()
	s, err := a.load(ctx, projectID)
	if err != nil {
		return err
	}
	if err := fn(s.store); err != nil {
		return err
	}
	if _, err := a.save(ctx, s); err != nil {
		return err
	}
	return printHistory(cmd.OutOrStdout(), s.store)
}

func printHistory(w io.Writer, s *history.Store) error {
	cur := s.Cursor()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tENTRY\tLABEL\tAT")
	for i, e := range s.Entries() {
		mark := ""
		if i == cur {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", mark, i, e.Label, e.At.Local().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
