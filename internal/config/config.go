/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type BackendConfig struct {
	// Kind selects the generation backend: "http" or "placeholder" (offline renderer).
	Kind        string `yaml:"kind"`
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	TelemetryURL   string `yaml:"telemetry_url"`
	DefaultMode    string `yaml:"default_mode"` // "storyboard" | "comic"
}

type GenerationConfig struct {
	Concurrency    int    `yaml:"concurrency"`
	RateIntervalMs int    `yaml:"rate_interval_ms"` // minimum spacing between backend calls, 0 disables
	RateBurst      int    `yaml:"rate_burst"`
	DefaultStyle   string `yaml:"default_style"`
	HistoryDepth   int    `yaml:"history_depth"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "postgres"
	Path   string `yaml:"path"`   // sqlite file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

type ExportConfig struct {
	OutDir       string `yaml:"out_dir"`
	TargetWidth  int    `yaml:"target_width"`
	LayoutPreset string `yaml:"layout_preset"`
	BubblePreset string `yaml:"bubble_preset"`
	PresetsFile  string `yaml:"presets_file"`
	FontFile     string `yaml:"font_file"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
	// Rotation of File; zero keeps the logger defaults.
	MaxSizeMB  int `yaml:"max_size_mb"`
	MaxBackups int `yaml:"max_backups"`
	MaxAgeDays int `yaml:"max_age_days"`
}

type AppConfig struct {
	ConfigVersion int              `yaml:"config_version"`
	General       GeneralConfig    `yaml:"general"`
	Backend       BackendConfig    `yaml:"backend"`
	Generation    GenerationConfig `yaml:"generation"`
	Storage       StorageConfig    `yaml:"storage"`
	Export        ExportConfig     `yaml:"export"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false, DefaultMode: "storyboard"},
		Backend:       BackendConfig{Kind: "http", BaseURL: "http://localhost:8080", TimeoutMs: 120000, TLSInsecure: false},
		Generation:    GenerationConfig{Concurrency: 3, RateIntervalMs: 0, RateBurst: 1, DefaultStyle: "cinematic", HistoryDepth: 200},
		Storage:       StorageConfig{Driver: "sqlite", Path: ""},
		Export:        ExportConfig{OutDir: "exports", TargetWidth: 2480, LayoutPreset: "classic", BubblePreset: "classic"},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile       = "GSB_CONFIG"
	EnvBackendKind      = "GSB_BACKEND"
	EnvBackendURL       = "GSB_BACKEND_URL"
	EnvBackendTimeoutMs = "GSB_BACKEND_TIMEOUT_MS"
	EnvBackendTLSInsec  = "GSB_TLS_INSECURE"
	EnvBackendToken     = "GSB_BACKEND_TOKEN"
	EnvTelemetryOptIn   = "GSB_TELEMETRY_OPT_IN"
	EnvConcurrency      = "GSB_CONCURRENCY"
	EnvStorageDriver    = "GSB_STORAGE_DRIVER"
	EnvStoragePath      = "GSB_DB"
	EnvStorageDSN       = "GSB_PG_DSN"
	EnvExportDir        = "GSB_EXPORT_DIR"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "GSB_LOG_LEVEL"
	EnvLogFormat = "GSB_LOG_FORMAT"
	EnvLogSource = "GSB_LOG_SOURCE"
	EnvLogFile   = "GSB_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "GoStoryboard"
	keyringToken   = "backend_token"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// configDir resolves the per-user configuration directory.
func configDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "GoStoryboard")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "GoStoryboard")
	default: // linux and others
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "gostoryboard")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "gostoryboard")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the per-user config file path; GSB_CONFIG wins when set.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultDBPath is used when storage.path is empty.
func DefaultDBPath() string {
	dir, err := configDir()
	if err != nil {
		return "storyboard.sqlite"
	}
	return filepath.Join(dir, "library.sqlite")
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// It also loads the backend token from keyring (not kept inside the struct; returned separately).
// A file that fails to parse is reported as an error together with the defaults.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file path.
func LoadFrom(path string) (AppConfig, string, error) {
	cfg := Defaults()
	var perr error
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			perr = fmt.Errorf("parse config %s: %w", path, err)
		} else {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	tok := strings.TrimSpace(os.Getenv(EnvBackendToken))
	if tok == "" {
		tok, _ = tokenStore.Get(keyringService, keyringToken)
	}
	return cfg, tok, perr
}

// Save writes the user config YAML and persists the token into OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	}
	return nil
}

// ForgetToken removes the backend token from the keyring.
func ForgetToken() error { return tokenStore.Delete(keyringService, keyringToken) }

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	setStr(&dst.General.TelemetryURL, src.General.TelemetryURL)
	setLower(&dst.General.DefaultMode, src.General.DefaultMode)

	setLower(&dst.Backend.Kind, src.Backend.Kind)
	setStr(&dst.Backend.BaseURL, src.Backend.BaseURL)
	setInt(&dst.Backend.TimeoutMs, src.Backend.TimeoutMs)
	dst.Backend.TLSInsecure = src.Backend.TLSInsecure

	setInt(&dst.Generation.Concurrency, src.Generation.Concurrency)
	setInt(&dst.Generation.RateIntervalMs, src.Generation.RateIntervalMs)
	setInt(&dst.Generation.RateBurst, src.Generation.RateBurst)
	setStr(&dst.Generation.DefaultStyle, src.Generation.DefaultStyle)
	setInt(&dst.Generation.HistoryDepth, src.Generation.HistoryDepth)

	setLower(&dst.Storage.Driver, src.Storage.Driver)
	setStr(&dst.Storage.Path, src.Storage.Path)
	setStr(&dst.Storage.DSN, src.Storage.DSN)

	setStr(&dst.Export.OutDir, src.Export.OutDir)
	setInt(&dst.Export.TargetWidth, src.Export.TargetWidth)
	setLower(&dst.Export.LayoutPreset, src.Export.LayoutPreset)
	setLower(&dst.Export.BubblePreset, src.Export.BubblePreset)
	setStr(&dst.Export.PresetsFile, src.Export.PresetsFile)
	setStr(&dst.Export.FontFile, src.Export.FontFile)

	// logging
	setLower(&dst.Logging.Level, src.Logging.Level)
	setLower(&dst.Logging.Format, src.Logging.Format)
	dst.Logging.Source = src.Logging.Source
	setStr(&dst.Logging.File, src.Logging.File)
	setInt(&dst.Logging.MaxSizeMB, src.Logging.MaxSizeMB)
	setInt(&dst.Logging.MaxBackups, src.Logging.MaxBackups)
	setInt(&dst.Logging.MaxAgeDays, src.Logging.MaxAgeDays)
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setLower(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = strings.ToLower(v)
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func parseBool(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendKind)); v != "" {
		cfg.Backend.Kind = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTLSInsec)); v != "" {
		cfg.Backend.TLSInsecure = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvConcurrency)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Generation.Concurrency = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageDriver)); v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStoragePath)); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageDSN)); v != "" {
		cfg.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvExportDir)); v != "" {
		cfg.Export.OutDir = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var overrideKeys = map[string]string{
	"backend.kind":             EnvBackendKind,
	"backend.base_url":         EnvBackendURL,
	"backend.timeout_ms":       EnvBackendTimeoutMs,
	"backend.tls_insecure":     EnvBackendTLSInsec,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"generation.concurrency":   EnvConcurrency,
	"storage.driver":           EnvStorageDriver,
	"storage.path":             EnvStoragePath,
	"storage.dsn":              EnvStorageDSN,
	"export.out_dir":           EnvExportDir,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := overrideKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// EffectiveTimeout returns the backend timeout, falling back to the default for non-positive values.
func (b BackendConfig) EffectiveTimeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// RateInterval returns the minimum spacing between backend calls.
func (g GenerationConfig) RateInterval() time.Duration {
	return time.Duration(g.RateIntervalMs) * time.Millisecond
}
