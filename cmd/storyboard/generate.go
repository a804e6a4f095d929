/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/generate"
)

func parseKind(s string) (domain.ArtifactKind, error) {
	switch k := domain.ArtifactKind(strings.ToLower(s)); k {
	case domain.ArtifactImage, domain.ArtifactAudio, domain.ArtifactVideo:
		return k, nil
	}
	return "", fmt.Errorf("unknown artifact kind %q", s)
}

func sceneIDs(p domain.Project) []int {
	ids := make([]int, 0, len(p.Scenes))
	for _, sc := range p.Scenes {
		ids = append(ids, sc.ID)
	}
	return ids
}

func parseSceneID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid scene id %q", s)
	}
	return id, nil
}

// reportFailures prints the scenes whose artifact of kind carries an error.
func reportFailures(w io.Writer, p domain.Project, kind domain.ArtifactKind) int {
	n := 0
	for i := range p.Scenes {
		sc := &p.Scenes[i]
		if msg := sc.Artifact(kind).Error; msg != "" {
			fmt.Fprintf(w, "scene %d: %s failed: %s\n", sc.ID, kind, msg)
			n++
		}
	}
	return n
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		kindArg     string
		scenes      []int
		cancelAfter time.Duration
	)
	cmd := &cobra.Command{
		Use:   "generate <project-id>",
		Short: "Generate artifacts for the scenes of a project",
		Long: `Generate one kind of artifact (image, audio or video) for every scene,
or for the scenes given with --scene. Requests run concurrently up to
generation.concurrency. Failed scenes keep their error and do not stop the
others. The finished run is one undo step labelled "generated <kind>".

With --cancel-after, video generations still running after the given time
are canceled; the scenes keep their previous video.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kind, err := parseKind(kindArg)
			if err != nil {
				return err
			}
			s, err := a.open(ctx, args[0])
			if err != nil {
				return err
			}
			defer s.close()
			p := s.store.Current()
			ids := scenes
			if len(ids) == 0 {
				ids = sceneIDs(p)
			}
			for _, id := range ids {
				if _, ok := p.Scene(id); !ok {
					return fmt.Errorf("%w: %d", generate.ErrUnknownScene, id)
				}
			}
			shared := generate.SharedFrom(p)
			var canceled []int
			if kind == domain.ArtifactVideo {
				stop := cancelVideosAfter(s.orch, ids, cancelAfter)
				// One call per scene; the orchestrator's limiter bounds how
				// many run at once. A failed scene must not cancel the others.
				var g errgroup.Group
				for _, id := range ids {
					g.Go(func() error { return s.orch.GenerateVideo(ctx, id, shared) })
				}
				// failures are recorded on the scenes
				_ = g.Wait()
				canceled = stop()
			} else {
				s.orch.GenerateBatch(ctx, ids, kind, shared)
			}
			s.store.Apply(s.store.Current(), fmt.Sprintf("generated %s", kind))
			if p, err = a.save(ctx, s); err != nil {
				return err
			}
			for _, id := range canceled {
				fmt.Fprintf(cmd.OutOrStdout(), "scene %d: video canceled\n", id)
			}
			if n := reportFailures(cmd.OutOrStdout(), p, kind); n > 0 {
				return fmt.Errorf("%d of %d %s generation(s) failed", n, len(ids), kind)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %s for %d scene(s)\n", kind, len(ids))
			return nil
		},
	}
	cmd.Flags().StringVar(&kindArg, "kind", "image", "image, audio or video")
	cmd.Flags().IntSliceVar(&scenes, "scene", nil, "scene ids (default all)")
	cmd.Flags().DurationVar(&cancelAfter, "cancel-after", 0, "cancel video generations still running after this long (0 waits)")
	return cmd
}

type videoCanceler interface {
	Cancel(sceneID int) bool
}

// cancelVideosAfter cancels the video generations of ids still running after
// d. stop disarms the timer and returns the scenes that were canceled.
func cancelVideosAfter(c videoCanceler, ids []int, d time.Duration) (stop func() []int) {
	if d <= 0 {
		return func() []int { return nil }
	}
	var (
		mu       sync.Mutex
		canceled []int
	)
	t := time.AfterFunc(d, func() {
		for _, id := range ids {
			if c.Cancel(id) {
				mu.Lock()
				canceled = append(canceled, id)
				mu.Unlock()
			}
		}
	})
	return func() []int {
		t.Stop()
		mu.Lock()
		defer mu.Unlock()
		return append([]int(nil), canceled...)
	}
}

func newRegenerateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <project-id> <scene-id>",
		Short: "Regenerate one scene image with a fresh seed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSceneID(args[1])
			if err != nil {
				return err
			}
			return a.editScene(cmd, args[0], func(s *session) error {
				return s.orch.Retry(cmd.Context(), id)
			})
		},
	}
}

func newModifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "modify <project-id> <scene-id> <feedback...>",
		Short: "Change one scene image according to feedback",
		Long: `Send the current scene image together with the feedback text to the
backend and replace the image with the result.

Example:
  storyboard modify 3f1c... 2 "make it rain, keep the lighthouse"`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSceneID(args[1])
			if err != nil {
				return err
			}
			feedback := strings.TrimSpace(strings.Join(args[2:], " "))
			if feedback == "" {
				return fmt.Errorf("feedback is required")
			}
			return a.editScene(cmd, args[0], func(s *session) error {
				return s.orch.ApplyModification(cmd.Context(), id, feedback)
			})
		},
	}
}

// editScene runs one single-scene generation and saves the project. The
// project is saved even when the generation fails so the error is kept.
func (a *app) editScene(cmd *cobra.Command, projectID string, run func(*session) error) error {
	ctx := cmd.Context()
	s, err := a.open(ctx, projectID)
	if err != nil {
		return err
	}
	defer s.close()
	genErr := run(s)
	if _, err := a.save(ctx, s); err != nil {
		return err
	}
	if genErr != nil {
		return genErr
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}
