/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"bufio"
	"io"
	"regexp"
	"slices"
	"strings"

	"gostoryboard/internal/domain"
)

var (
	reScene    = regexp.MustCompile(`^(#+)\s*(.*)$`)
	reSceneAlt = regexp.MustCompile(`^(?i)\s*Scene:\s*(.*)$`)
	reName     = regexp.MustCompile(`^([A-Za-z0-9_\- ]{1,64})\s*:\s*(.*)$`)
	reBeat     = regexp.MustCompile(`^(?i)\s*(Panel\s*\d+|Beat)\b\s*(.*)$`)
	reTag      = regexp.MustCompile(`(?i)(?:^|\s)@([a-z0-9_\-]+)`)
)

const maxLine = 1 << 20

// builder accumulates one scene.
type builder struct {
	text  []string
	dirs  []string
	chars []string
	tags  []string
	// last is the index in text of the line a continuation extends, or -1.
	last int
}

func (b *builder) empty() bool { return len(b.text) == 0 && len(b.dirs) == 0 }

func (b *builder) addChar(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	for _, c := range b.chars {
		if strings.EqualFold(c, name) {
			return
		}
	}
	b.chars = append(b.chars, name)
}

func (b *builder) addTags(s string) string {
	for _, m := range reTag.FindAllStringSubmatch(s, -1) {
		t := strings.ToLower(m[1])
		if !slices.Contains(b.tags, t) {
			b.tags = append(b.tags, t)
		}
	}
	return strings.Join(strings.Fields(reTag.ReplaceAllString(s, " ")), " ")
}

// Parse reads scenes from input, numbering them from firstID. Lines that
// cannot be used are reported and skipped; the scenes read so far are still
// returned.
func Parse(r io.Reader, firstID int) ([]domain.Scene, []Error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	var errs []Error
	if err := scanner.Err(); err != nil {
		errs = append(errs, Error{Line: len(lines) + 1, Column: 1, Message: err.Error()})
	}

	structured := slices.ContainsFunc(lines, func(l string) bool {
		t := strings.TrimSpace(l)
		return reScene.MatchString(t) || reSceneAlt.MatchString(t) || reBeat.MatchString(t)
	})

	var out []domain.Scene
	cur := &builder{last: -1}
	flush := func() {
		if cur.empty() {
			cur = &builder{last: -1}
			return
		}
		out = append(out, domain.Scene{
			ID:         firstID + len(out),
			Text:       strings.Join(cur.text, " "),
			Directive:  strings.Join(cur.dirs, " "),
			Characters: cur.chars,
			Tags:       cur.tags,
		})
		cur = &builder{last: -1}
	}
	start := func(directive string) {
		flush()
		if d := cur.addTags(directive); d != "" {
			cur.dirs = append(cur.dirs, d)
		}
	}

	for i, line := range lines {
		lineNo := i + 1

		// Continuation line (indented) -> append to last dialogue/caption
		if strings.HasPrefix(line, "  ") && cur.last >= 0 {
			if cont := cur.addTags(strings.TrimSpace(line)); cont != "" {
				cur.text[cur.last] += " " + cont
			}
			continue
		}

		trim := strings.TrimSpace(line)
		if trim == "" {
			cur.last = -1
			if !structured {
				flush()
			}
			continue
		}
		if strings.HasPrefix(trim, ";") {
			continue
		}
		if m := reScene.FindStringSubmatch(trim); m != nil {
			start(m[2])
			continue
		}
		if m := reSceneAlt.FindStringSubmatch(trim); m != nil {
			start(m[1])
			continue
		}
		if m := reBeat.FindStringSubmatch(trim); m != nil {
			start(m[2])
			continue
		}
		if strings.HasPrefix(trim, ">") {
			if d := cur.addTags(strings.TrimSpace(trim[1:])); d != "" {
				cur.dirs = append(cur.dirs, d)
			}
			cur.last = -1
			continue
		}

		kind := lineNarration
		text := trim
		if m := reName.FindStringSubmatch(trim); m != nil {
			name := strings.TrimSpace(m[1])
			text = strings.TrimSpace(m[2])
			switch strings.ToUpper(name) {
			case "CAST":
				for _, c := range strings.Split(text, ",") {
					cur.addChar(cur.addTags(c))
				}
				cur.last = -1
				continue
			case "CAPTION", "NARRATION":
				kind = lineCaption
			default:
				kind = lineDialogue
				if text == "" {
					errs = append(errs, Error{Line: lineNo, Column: len(m[1]) + 1, Message: "dialogue without text"})
					continue
				}
				cur.addChar(name)
				text = name + ": " + text
			}
		}
		if text = cur.addTags(text); text == "" {
			continue
		}
		cur.text = append(cur.text, text)
		cur.last = -1
		if kind != lineNarration {
			cur.last = len(cur.text) - 1
		}
	}
	flush()
	return out, errs
}
