/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package script reads a plain-text scene script into project scenes.
//
// Syntax, one construct per line:
//
//	# EXT. HARBOUR - NIGHT     heading: starts a scene, text becomes its directive
//	Scene: harbour at night    same as "#"
//	Panel 2 close on the rope  panel or beat marker: starts a scene as well
//	> low angle, rain          appends to the directive
//	MARA: Cast off!            dialogue; MARA joins the scene's characters
//	  We're late.              indented continuation of the previous dialogue
//	CAPTION: Midnight.         caption or NARRATION: text without a speaker
//	CAST: Mara, Tom            characters without dialogue
//	; author note              ignored
//	@storm                     anywhere in a line: a scene tag
//
// Any other line is narration. In a script without headings or markers a
// blank line ends the scene.
package script

import "fmt"

type lineKind int

const (
	lineNarration lineKind = iota
	lineDialogue
	lineCaption
)

// Error represents a parse error with position context.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e Error) Error() string { return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Message) }
