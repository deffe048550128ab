package persist

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/batchdl/pkg/fetch"
)

func sampleBatch() Batch {
	return Batch{
		Number:    3,
		Size:      4,
		Created:   time.Date(2020, 5, 1, 9, 0, 0, 0, time.UTC),
		Completed: time.Date(2020, 5, 1, 9, 5, 0, 0, time.UTC),
		Results: map[int]fetch.Outcome{
			20: fetch.FoundOutcome(fetch.Record{"nombre": "José Pérez", "promedio": "9.5"}),
			21: fetch.AbsentOutcome(),
			22: fetch.FailedOutcome(),
			9:  fetch.FoundOutcome(fetch.Record{"nombre": "<Ana & Co>"}),
		},
	}
}

func TestEncode(t *testing.T) {
	body, err := Encode(sampleBatch().Results)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, body)
	}

	if decoded["21"] != nil {
		t.Errorf("absent item = %v, want null", decoded["21"])
	}
	if decoded["22"] != false {
		t.Errorf("failed item = %v, want false", decoded["22"])
	}
	record, ok := decoded["20"].(map[string]any)
	if !ok || record["nombre"] != "José Pérez" {
		t.Errorf("found item = %v", decoded["20"])
	}

	text := string(body)
	if !strings.Contains(text, "José Pérez") {
		t.Error("non-ASCII text must not be escaped")
	}
	if !strings.Contains(text, "<Ana & Co>") {
		t.Error("HTML characters must not be escaped")
	}
	if strings.Index(text, `"9"`) > strings.Index(text, `"20"`) {
		t.Error("IDs must be ordered numerically")
	}
}

func TestEncode_Empty(t *testing.T) {
	body, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if string(body) != "{}\n" {
		t.Errorf("Encode(nil) = %q", body)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	a, _ := Encode(sampleBatch().Results)
	b, _ := Encode(sampleBatch().Results)
	if !bytes.Equal(a, b) {
		t.Error("Encode output must be stable")
	}
}

func TestPersistor_Save(t *testing.T) {
	dir := t.TempDir()
	p := New(Config{Folder: dir, FilenameFormat: "batch_{batch_number:03}.json"})

	file, err := p.Save(sampleBatch(), false)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if file.Path != filepath.Join(dir, "batch_003.json") {
		t.Errorf("Path = %q", file.Path)
	}
	if file.Name() != "batch_003.json" {
		t.Errorf("Name() = %q", file.Name())
	}

	data, err := os.ReadFile(file.Path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	md5Sum := md5.Sum(data)
	sha1Sum := sha1.Sum(data)
	if file.MD5 != hex.EncodeToString(md5Sum[:]) {
		t.Errorf("MD5 = %s, want %s", file.MD5, hex.EncodeToString(md5Sum[:]))
	}
	if file.SHA1 != hex.EncodeToString(sha1Sum[:]) {
		t.Errorf("SHA1 = %s, want %s", file.SHA1, hex.EncodeToString(sha1Sum[:]))
	}
	if file.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", file.Size, len(data))
	}
	if file.HumanSize == "" {
		t.Error("HumanSize should be set")
	}
}

func TestPersistor_SaveExistingFile(t *testing.T) {
	dir := t.TempDir()
	p := New(Config{Folder: dir, FilenameFormat: "out.json"})
	path := filepath.Join(dir, "out.json")

	original := []byte("keep me")
	if err := os.WriteFile(path, original, 0o644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		_, err := p.Save(sampleBatch(), false)
		if !errors.Is(err, ErrFileExists) {
			t.Fatalf("Save() error = %v, want ErrFileExists", err)
		}
		data, _ := os.ReadFile(path)
		if !bytes.Equal(data, original) {
			t.Fatal("existing file must not be modified")
		}
	}

	file, err := p.Save(sampleBatch(), true)
	if err != nil {
		t.Fatalf("Save(overwrite) error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if bytes.Equal(data, original) {
		t.Error("overwrite should replace the file")
	}
	if file.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", file.Size, len(data))
	}
}

// failingWriter writes to the real file, then fails.
type failingWriter struct {
	io.WriteCloser
	failClose bool
}

func (w failingWriter) Write(b []byte) (int, error) {
	if w.failClose {
		return w.WriteCloser.Write(b)
	}
	n, _ := w.WriteCloser.Write(b[:len(b)/2])
	return n, errors.New("no space left on device")
}

func (w failingWriter) Close() error {
	err := w.WriteCloser.Close()
	if w.failClose {
		return errors.New("input/output error")
	}
	return err
}

func TestPersistor_SaveRemovesPartialFile(t *testing.T) {
	tests := []struct {
		name      string
		failClose bool
	}{
		{name: "write fails", failClose: false},
		{name: "close fails", failClose: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			p := New(Config{Folder: dir, FilenameFormat: "out.json"})
			p.openFile = func(name string, flag int, perm os.FileMode) (io.WriteCloser, error) {
				f, err := os.OpenFile(name, flag, perm)
				if err != nil {
					return nil, err
				}
				return failingWriter{WriteCloser: f, failClose: tt.failClose}, nil
			}

			_, err := p.Save(sampleBatch(), false)
			if err == nil {
				t.Fatal("Save() should fail")
			}
			if errors.Is(err, ErrFileExists) {
				t.Fatalf("Save() error = %v, want an I/O error", err)
			}
			if _, err := os.Stat(filepath.Join(dir, "out.json")); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("partial file should be removed, stat err = %v", err)
			}

			p.openFile = openOSFile
			if _, err := p.Save(sampleBatch(), false); err != nil {
				t.Errorf("retry Save() error = %v", err)
			}
		})
	}
}

func TestPersistor_SaveErrors(t *testing.T) {
	dir := t.TempDir()
	notDir := filepath.Join(dir, "plain")
	if err := os.WriteFile(notDir, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		config   Config
		expected error
	}{
		{
			name:     "unknown placeholder",
			config:   Config{Folder: dir, FilenameFormat: "data_{unknown}.json"},
			expected: ErrInvalidName,
		},
		{
			name:     "missing folder",
			config:   Config{Folder: filepath.Join(dir, "missing"), FilenameFormat: "x.json"},
			expected: ErrFolderNotExists,
		},
		{
			name:     "folder is a file",
			config:   Config{Folder: notDir, FilenameFormat: "x.json"},
			expected: ErrFolderNotExists,
		},
		{
			name:     "invalid name wins over missing folder",
			config:   Config{Folder: filepath.Join(dir, "missing"), FilenameFormat: "{nope}"},
			expected: ErrInvalidName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config).Save(sampleBatch(), false)
			if !errors.Is(err, tt.expected) {
				t.Errorf("Save() error = %v, want %v", err, tt.expected)
			}
		})
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("no file should be written on error, dir has %d entries", len(entries))
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{})
	if p.Config().FilenameFormat != DefaultFilenameFormat {
		t.Errorf("FilenameFormat = %q", p.Config().FilenameFormat)
	}
	if p.Config().Folder != "." {
		t.Errorf("Folder = %q", p.Config().Folder)
	}
}
