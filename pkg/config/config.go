// Package config loads, validates and saves the downloader settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Sternrassler/batchdl/pkg/batch"
	"github.com/Sternrassler/batchdl/pkg/persist"
)

var (
	// ErrFolderNotExists indicates the download folder does not exist.
	ErrFolderNotExists = errors.New("download folder does not exist")

	// ErrNotAFolder indicates the download folder path is not a directory.
	ErrNotAFolder = errors.New("download folder is not a directory")

	// ErrInvalidBatchSize indicates a batch size <= 0.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrInvalidWorkers indicates a worker count <= 0.
	ErrInvalidWorkers = errors.New("workers must be positive")

	// ErrInvalidMaxTasks indicates a negative task limit.
	ErrInvalidMaxTasks = errors.New("max tasks must not be negative")
)

// AppName names the settings directory.
const AppName = "batchdl"

// Settings are the user-level downloader settings.
type Settings struct {
	// BatchSize is the number of IDs per batch.
	BatchSize int `json:"batch_size"`

	// FilenameFormat is the file name template of saved batches.
	FilenameFormat string `json:"filename_format"`

	// DownloadFolder is where batches are saved.
	DownloadFolder string `json:"download_folder"`

	// Workers is the pool size of parallel tasks.
	Workers int `json:"workers"`

	// MaxTasks limits live tasks in the manager. Zero means unlimited.
	MaxTasks int `json:"max_tasks"`
}

// DefaultSettings returns settings that save into the working directory.
func DefaultSettings() Settings {
	return Settings{
		BatchSize:      batch.DefaultBatchSize,
		FilenameFormat: persist.DefaultFilenameFormat,
		DownloadFolder: ".",
		Workers:        batch.DefaultWorkers,
		MaxTasks:       0,
	}
}

// DefaultPath returns the settings file location under the user config dir.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(dir, AppName, "config.json"), nil
}

// Load reads settings from path. A missing file yields DefaultSettings.
// Keys absent from the file keep their default values. The result is not
// validated.
func Load(path string) (Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return settings, nil
}

// Save writes the settings as indented JSON, creating parent directories.
func (s Settings) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Validate checks the settings. The filename format is rendered once with
// sample values so template errors surface before any batch runs.
func (s Settings) Validate() error {
	if s.BatchSize <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidBatchSize, s.BatchSize)
	}
	if s.Workers <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidWorkers, s.Workers)
	}
	if s.MaxTasks < 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidMaxTasks, s.MaxTasks)
	}

	info, err := os.Stat(s.DownloadFolder)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFolderNotExists, s.DownloadFolder)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotAFolder, s.DownloadFolder)
	}

	now := time.Now()
	if _, err := persist.RenderName(s.FilenameFormat, persist.NameValues{
		BatchNumber: 1,
		BatchSize:   s.BatchSize,
		Now:         now,
		Created:     now,
		Completed:   now,
	}); err != nil {
		return err
	}
	return nil
}

// PersistConfig returns the persistor configuration for these settings.
func (s Settings) PersistConfig() persist.Config {
	return persist.Config{
		Folder:         s.DownloadFolder,
		FilenameFormat: s.FilenameFormat,
	}
}

// TaskConfig returns the task configuration for one batch.
func (s Settings) TaskConfig(batchNumber int, mode batch.Mode) batch.Config {
	cfg := batch.DefaultConfig(batchNumber)
	cfg.BatchSize = s.BatchSize
	cfg.Workers = s.Workers
	cfg.Mode = mode
	return cfg
}
