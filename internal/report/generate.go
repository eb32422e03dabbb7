package report

import (
	"archive/zip"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pavelanni/qla/internal/model"
)

// ArchiveName is the file name of the combined download.
const ArchiveName = "QLA_Reports.zip"

// Input is the finalized state a generation run reads.
type Input struct {
	// Names orders the students; when empty, Scores keys are used sorted.
	Names      []string
	Scores     map[string][]model.ScoreEntry
	Boundaries model.Boundaries
}

// Result describes one generation run.
type Result struct {
	Dir     string
	Files   []string // report file names in Dir, in student order
	Archive []byte   // QLA_Reports.zip contents
}

// ArchivePath returns the path of the archive written to Dir.
func (res Result) ArchivePath() string {
	return filepath.Join(res.Dir, ArchiveName)
}

type rendered struct {
	file string
	data []byte
}

// Generate renders every student's report into outDir, replacing any reports
// left by an earlier run, and packages them into QLA_Reports.zip. Missing
// scores or boundaries fail with ErrIncompleteConfiguration before the
// directory is touched.
func (r *Renderer) Generate(outDir string, in Input) (Result, error) {
	if in.Scores == nil || in.Boundaries == nil {
		return Result{}, fmt.Errorf("%w: scores and grade boundaries are required", model.ErrIncompleteConfiguration)
	}

	names := in.Names
	if len(names) == 0 {
		for name := range in.Scores {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	reports := make([]StudentReport, 0, len(names))
	for _, name := range names {
		rep, err := Build(name, in.Scores[name])
		if err != nil {
			return Result{}, err
		}
		reports = append(reports, rep)
	}

	docs := make([]rendered, 0, len(reports))
	seen := make(map[string]bool, len(reports))
	for _, rep := range reports {
		file := FileName(rep.Name)
		if seen[file] {
			slog.Warn("students share a report file name, keeping the first", "name", rep.Name, "file", file)
			continue
		}
		seen[file] = true
		var buf bytes.Buffer
		if err := r.Render(&buf, rep, in.Boundaries); err != nil {
			return Result{}, err
		}
		docs = append(docs, rendered{file: file, data: buf.Bytes()})
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}
	if err := clearStale(outDir); err != nil {
		return Result{}, err
	}

	res := Result{Dir: outDir}
	for _, d := range docs {
		if err := os.WriteFile(filepath.Join(outDir, d.file), d.data, 0o644); err != nil {
			return Result{}, fmt.Errorf("write %s: %w", d.file, err)
		}
		res.Files = append(res.Files, d.file)
	}

	archive, err := r.archive(docs)
	if err != nil {
		return Result{}, err
	}
	if err := os.WriteFile(res.ArchivePath(), archive, 0o644); err != nil {
		return Result{}, fmt.Errorf("write archive: %w", err)
	}
	res.Archive = archive

	slog.Info("generated reports", "dir", outDir, "count", len(res.Files), "branding", r.branding != nil)
	return res, nil
}

// clearStale removes reports and the archive from an earlier run.
func clearStale(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), Ext) && name != ArchiveName {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("remove stale %s: %w", name, err)
		}
		slog.Debug("removed stale output", "file", name)
	}
	return nil
}

func (r *Renderer) archive(docs []rendered) ([]byte, error) {
	sorted := append([]rendered(nil), docs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].file < sorted[j].file })

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := r.now()
	for _, d := range sorted {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     d.file,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("add %s to archive: %w", d.file, err)
		}
		if _, err := fw.Write(d.data); err != nil {
			return nil, fmt.Errorf("add %s to archive: %w", d.file, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}
