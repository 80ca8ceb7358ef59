// Package asset holds the file plumbing shared by the pipelines: listing sources, reporting per-file problems and
// writing outputs so that overlapping runs never leave a partially written file behind.
package asset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/swdunlop/press-go/press/paths"
	"github.com/swdunlop/press-go/press/report"
)

// A Job is the environment of a single pipeline run.
type Job struct {
	paths.Entry
	Registry *paths.Registry
	Reporter report.Reporter

	written []string
}

// NewJob returns a job for the given category.
func NewJob(reg *paths.Registry, category paths.Category, reporter report.Reporter) *Job {
	if reporter == nil {
		reporter = report.Discard
	}
	return &Job{Entry: reg.Lookup(category), Registry: reg, Reporter: reporter}
}

// Sources lists the root relative names of the files this job should process.
func (job *Job) Sources() ([]string, error) {
	return job.Entry.Sources(job.Registry.FS())
}

// Read reads a root relative source file.
func (job *Job) Read(name string) ([]byte, error) {
	return os.ReadFile(job.Registry.Abs(name))
}

// Problem reports a recoverable failure for a source file.
func (job *Job) Problem(ctx context.Context, name, stage string, err error) {
	job.Reporter.Report(ctx, report.Problem{File: name, Stage: stage, Message: err.Error()})
}

// Prepare creates the destination directory, failing the run if it cannot be created.
func (job *Job) Prepare() error {
	err := os.MkdirAll(job.Dest, 0o755)
	if err != nil {
		return fmt.Errorf(`%w while preparing %s output`, err, job.Category)
	}
	return nil
}

// Write writes data to the absolute path, recording it as an output of the job.
func (job *Job) Write(path string, data []byte) error {
	err := WriteFile(path, data, 0o644)
	if err != nil {
		return err
	}
	job.written = append(job.written, path)
	return nil
}

// Copy copies the root relative source file to the absolute path, recording it as an output of the job.
func (job *Job) Copy(name, path string) error {
	err := CopyFile(job.Registry.Abs(name), path)
	if err != nil {
		return err
	}
	job.written = append(job.written, path)
	return nil
}

// Written returns the absolute paths written by the job so far.
func (job *Job) Written() []string { return job.written }

// WriteFile writes data to path by writing a temporary sibling and renaming it over the destination.  Any missing
// parent directories are created.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, `.`+filepath.Base(path)+`.tmp.*`)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// CopyFile copies src to dst using the same temporary file discipline as WriteFile.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	dir := filepath.Dir(dst)
	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, `.`+filepath.Base(dst)+`.tmp.*`)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}

// Suffix inserts suffix between the base name and the extension of path, so "main.css" becomes "main.min.css".
func Suffix(path, suffix string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + suffix + ext
}
