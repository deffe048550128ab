// Package persist writes a batch's result map to disk under a templated file
// name and captures the size and digests of what actually landed on disk.
package persist

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/Sternrassler/batchdl/pkg/fetch"
	"github.com/Sternrassler/batchdl/pkg/logging"
	units "github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Save errors. The batch stays Completed when any of these is returned.
var (
	// ErrInvalidName indicates the filename template could not be rendered.
	ErrInvalidName = errors.New("invalid file name")

	// ErrFolderNotExists indicates the target directory is missing.
	ErrFolderNotExists = errors.New("folder does not exist")

	// ErrFileExists indicates the target file exists and overwrite was not requested.
	ErrFileExists = errors.New("file already exists")
)

// Prometheus metrics for persistence.
var (
	savesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchdl_saves_total",
		Help: "Total number of result files written",
	})

	saveErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchdl_save_errors_total",
		Help: "Total number of failed saves by reason",
	}, []string{"reason"})

	savedBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchdl_saved_file_bytes",
		Help:    "Size of written result files in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})
)

// DefaultFilenameFormat is used when no template is configured.
const DefaultFilenameFormat = "batch_data_{batch_number:03}.json"

// Config holds persistor configuration.
type Config struct {
	// Folder is the target directory. It must already exist.
	Folder string

	// FilenameFormat is the filename template (see RenderName).
	FilenameFormat string
}

// DefaultConfig returns a configuration writing to the working directory.
func DefaultConfig() Config {
	return Config{
		Folder:         ".",
		FilenameFormat: DefaultFilenameFormat,
	}
}

// Batch is what the persistor needs from a completed batch.
type Batch struct {
	Number    int
	Size      int
	Created   time.Time
	Completed time.Time
	Results   map[int]fetch.Outcome
}

// PersistedFile describes a written result file.
type PersistedFile struct {
	Path      string
	Size      int64
	HumanSize string
	MD5       string
	SHA1      string
}

// Name returns the base name of the file.
func (f PersistedFile) Name() string {
	return filepath.Base(f.Path)
}

// Persistor writes result maps to disk.
type Persistor struct {
	config   Config
	now      func() time.Time
	openFile func(name string, flag int, perm os.FileMode) (io.WriteCloser, error)
	logger   zerolog.Logger
}

func openOSFile(name string, flag int, perm os.FileMode) (io.WriteCloser, error) {
	return os.OpenFile(name, flag, perm)
}

// New creates a persistor.
func New(config Config) *Persistor {
	if config.FilenameFormat == "" {
		config.FilenameFormat = DefaultFilenameFormat
	}
	if config.Folder == "" {
		config.Folder = "."
	}
	return &Persistor{
		config:   config,
		now:      time.Now,
		openFile: openOSFile,
		logger:   logging.NewLogger("persistor"),
	}
}

// Config returns the persistor configuration.
func (p *Persistor) Config() Config {
	return p.config
}

// Path resolves the output path for b without touching the filesystem.
func (p *Persistor) Path(b Batch) (string, error) {
	name, err := RenderName(p.config.FilenameFormat, NameValues{
		BatchNumber: b.Number,
		BatchSize:   b.Size,
		Now:         p.now(),
		Created:     b.Created,
		Completed:   b.Completed,
	})
	if err != nil {
		return "", err
	}
	return filepath.Join(p.config.Folder, name), nil
}

// Save writes b's results. Unless overwrite is set an existing file is left
// untouched and ErrFileExists is returned.
func (p *Persistor) Save(b Batch, overwrite bool) (PersistedFile, error) {
	file, err := p.save(b, overwrite)
	if err != nil {
		saveErrorsTotal.WithLabelValues(reason(err)).Inc()
		p.logger.Warn().
			Err(err).
			Int("batch", b.Number).
			Bool("overwrite", overwrite).
			Msg("Save failed")
		return PersistedFile{}, err
	}

	savesTotal.Inc()
	savedBytes.Observe(float64(file.Size))
	p.logger.Info().
		Int("batch", b.Number).
		Str("path", file.Path).
		Int64("size", file.Size).
		Str("md5", file.MD5).
		Msg("Results saved")

	return file, nil
}

func (p *Persistor) save(b Batch, overwrite bool) (PersistedFile, error) {
	path, err := p.Path(b)
	if err != nil {
		return PersistedFile{}, err
	}

	info, err := os.Stat(p.config.Folder)
	if err != nil || !info.IsDir() {
		return PersistedFile{}, fmt.Errorf("%w: %s", ErrFolderNotExists, p.config.Folder)
	}

	body, err := Encode(b.Results)
	if err != nil {
		return PersistedFile{}, fmt.Errorf("encode results: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	// A partially written file is removed so a retry is not blocked by
	// ErrFileExists.
	f, err := p.openFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return PersistedFile{}, fmt.Errorf("%w: %s", ErrFileExists, path)
		}
		return PersistedFile{}, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(path)
		return PersistedFile{}, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return PersistedFile{}, fmt.Errorf("close %s: %w", path, err)
	}

	return Inspect(path)
}

// Inspect computes size and digests of the file at path by reading it back.
func Inspect(path string) (PersistedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return PersistedFile{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	md5Hash := md5.New()
	sha1Hash := sha1.New()
	size, err := io.Copy(io.MultiWriter(md5Hash, sha1Hash), f)
	if err != nil {
		return PersistedFile{}, fmt.Errorf("read %s: %w", path, err)
	}

	return PersistedFile{
		Path:      path,
		Size:      size,
		HumanSize: units.BytesSize(float64(size)),
		MD5:       hex.EncodeToString(md5Hash.Sum(nil)),
		SHA1:      hex.EncodeToString(sha1Hash.Sum(nil)),
	}, nil
}

// Encode serializes results as an indented JSON object keyed by the decimal
// ID in ascending numeric order. Found maps to the record object, Absent to
// null and Failed to false. Non-ASCII text is written as-is.
func Encode(results map[int]fetch.Outcome) ([]byte, error) {
	ids := make([]int, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var buf bytes.Buffer
	if len(ids) == 0 {
		buf.WriteString("{}\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("{\n")
	for i, id := range ids {
		value, err := encodeValue(results[id])
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", id, err)
		}
		buf.WriteString(`    "`)
		buf.WriteString(strconv.Itoa(id))
		buf.WriteString(`": `)
		buf.Write(value)
		if i < len(ids)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func encodeValue(o fetch.Outcome) ([]byte, error) {
	switch o.Kind {
	case fetch.Found:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("    ", "    ")
		record := o.Record
		if record == nil {
			record = fetch.Record{}
		}
		if err := enc.Encode(record); err != nil {
			return nil, err
		}
		return bytes.TrimRight(buf.Bytes(), "\n"), nil
	case fetch.Absent:
		return []byte("null"), nil
	default:
		return []byte("false"), nil
	}
}

// reason maps a save error to a metric label.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrFolderNotExists):
		return "folder_not_exists"
	case errors.Is(err, ErrFileExists):
		return "file_exists"
	default:
		return "io"
	}
}
