package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

const DefaultOutputFile = "cloudflare_ips.json"

// JSONFile writes the report as indented JSON, replacing the file atomically.
type JSONFile struct {
	path string
}

func NewJSONFile(path string) *JSONFile {
	if path == "" {
		path = DefaultOutputFile
	}
	return &JSONFile{path: path}
}

func (s *JSONFile) Name() string {
	return "json"
}

func (s *JSONFile) Path() string {
	return s.path
}

func (s *JSONFile) Save(ctx context.Context, report Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if report.Detections == nil {
		report.Detections = []Detection{}
	}

	data, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')

	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}

	log.Debug("Report written", "path", s.path, "detections", len(report.Detections))
	return nil
}

func writeFileAtomic(destPath string, data []byte) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".edgescan-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpFile.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), destPath); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}

	return nil
}
