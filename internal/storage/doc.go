/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements project persistence.
// The Library keeps projects in a SQL database (embedded SQLite or Postgres): the project document as zstd-compressed JSON,
// binary artifacts in a content-addressed blobs table, and a small summary row per project for listing without decoding documents.
// Portable single-file project snapshots (used for crash autosave) are written transactionally with timestamped backups.
package storage
