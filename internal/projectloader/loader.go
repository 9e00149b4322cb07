// Package projectloader turns a dump directory written by the build step into
// the list of projects handed to the analysis engine.
package projectloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scanbridge/internal/config"
	"scanbridge/internal/lockedfile"
	"scanbridge/internal/logging"
	"scanbridge/internal/projectinfo"
)

// Project is one analyzable project. Report paths are empty when the
// descriptor does not reference the report or the file does not exist.
type Project struct {
	Name                 string   `json:"name"`
	GUID                 string   `json:"guid"`
	FullPath             string   `json:"fullPath"`
	IsTest               bool     `json:"isTest"`
	Files                []string `json:"files"`
	StaticAnalysisReport string   `json:"staticAnalysisReport,omitempty"`
	CoverageReport       string   `json:"coverageReport,omitempty"`
}

// ExclusionReason says why a project folder produced no Project.
type ExclusionReason string

const (
	ReasonMissingDescriptor  ExclusionReason = "missing-descriptor"
	ReasonInvalidDescriptor  ExclusionReason = "invalid-descriptor"
	ReasonUnreadableArtifact ExclusionReason = "unreadable-artifact"
	ReasonNoSourceFiles      ExclusionReason = "no-source-files"
)

// Exclusion records a skipped project folder.
type Exclusion struct {
	Dir    string          `json:"dir"`
	Reason ExclusionReason `json:"reason"`
	Err    error           `json:"-"`
}

func (e Exclusion) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Dir, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Dir, e.Reason)
}

// Result is the outcome of one aggregation. Both slices follow the
// enumeration order of the dump directory.
type Result struct {
	DumpDir    string      `json:"dumpDir"`
	Projects   []*Project  `json:"projects"`
	Exclusions []Exclusion `json:"exclusions"`
}

// Loader aggregates dump directories.
type Loader struct {
	ProjectInfoFile string
	Workers         int
	Lock            lockedfile.Options
	log             *zap.Logger
}

// New builds a Loader from the tool settings.
func New(cfg *config.Config, log *zap.Logger) *Loader {
	log = logging.For(log, logging.CategoryAggregate)
	lock := cfg.LockOptions()
	lock.Logger = log
	return &Loader{
		ProjectInfoFile: cfg.Files.ProjectInfo,
		Workers:         cfg.Aggregate.Workers,
		Lock:            lock,
		log:             log,
	}
}

// slot holds the outcome for one subdirectory; exactly one field is set
// unless the entry is not a directory.
type slot struct {
	project   *Project
	exclusion *Exclusion
}

// Load aggregates every immediate subdirectory of dumpDir. Only problems
// with dumpDir itself, or a cancelled ctx, fail the whole call; anything
// wrong with a single project folder becomes an Exclusion.
func (l *Loader) Load(ctx context.Context, dumpDir string) (*Result, error) {
	if err := lockedfile.CheckPath(dumpDir); err != nil {
		return nil, fmt.Errorf("aggregate: dump dir: %w", err)
	}
	timer := logging.StartTimer(l.log, "aggregate "+dumpDir)
	defer timer.StopWithThreshold(5 * time.Second)

	entries, err := os.ReadDir(dumpDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dump directory: %w", err)
	}

	slots := make([]slot, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(l.Workers, 1))

	for i, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		i := i // per-iteration copy; the go directive predates Go 1.22 loop semantics
		dir := filepath.Join(dumpDir, entry.Name())
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = l.loadProject(gctx, dir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{DumpDir: dumpDir, Projects: []*Project{}, Exclusions: []Exclusion{}}
	for _, s := range slots {
		switch {
		case s.project != nil:
			res.Projects = append(res.Projects, s.project)
		case s.exclusion != nil:
			res.Exclusions = append(res.Exclusions, *s.exclusion)
		}
	}

	l.log.Info("aggregated dump directory",
		zap.String("dir", dumpDir),
		zap.Int("projects", len(res.Projects)),
		zap.Int("excluded", len(res.Exclusions)))
	return res, nil
}

func (l *Loader) exclude(dir string, reason ExclusionReason, err error) slot {
	fields := []zap.Field{zap.String("dir", dir), zap.String("reason", string(reason))}
	if err != nil {
		fields = append(fields, zap.Error(err))
		l.log.Warn("excluding project folder", fields...)
	} else {
		l.log.Debug("excluding project folder", fields...)
	}
	return slot{exclusion: &Exclusion{Dir: dir, Reason: reason, Err: err}}
}

func (l *Loader) loadProject(ctx context.Context, dir string) slot {
	info, err := projectinfo.TryLoad(ctx, filepath.Join(dir, l.ProjectInfoFile), l.Lock)
	if err != nil {
		return l.exclude(dir, ReasonInvalidDescriptor, err)
	}
	if info == nil {
		return l.exclude(dir, ReasonMissingDescriptor, nil)
	}

	var files []string
	for _, t := range []projectinfo.AnalysisType{projectinfo.ManagedCompilerInputs, projectinfo.ContentFiles} {
		lines, err := l.readList(ctx, info, t)
		if err != nil {
			return l.exclude(dir, ReasonUnreadableArtifact, err)
		}
		files = append(files, lines...)
	}
	files = dedupe(files)
	if len(files) == 0 {
		return l.exclude(dir, ReasonNoSourceFiles, nil)
	}

	p := &Project{
		Name:                 info.ProjectName,
		GUID:                 info.ProjectGUID.String(),
		FullPath:             info.FullPath,
		IsTest:               info.IsTest(),
		Files:                files,
		StaticAnalysisReport: resolveArtifact(info, projectinfo.FxCop),
		CoverageReport:       resolveArtifact(info, projectinfo.VisualStudioCodeCoverage),
	}
	l.log.Debug("loaded project",
		zap.String("name", p.Name),
		zap.Bool("isTest", p.IsTest),
		zap.Int("files", len(p.Files)))
	return slot{project: p}
}

// readList returns the lines of the list artifact of type t, or nothing when
// the descriptor has no such artifact or its file is gone.
func (l *Loader) readList(ctx context.Context, info *projectinfo.ProjectInfo, t projectinfo.AnalysisType) ([]string, error) {
	path := resolveArtifact(info, t)
	if path == "" {
		return nil, nil
	}
	lines, err := lockedfile.ReadLines(ctx, path, l.Lock)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s list %s: %w", t, path, err)
	}
	return lines, nil
}

// resolveArtifact returns the location of the first artifact of type t if
// it names an existing regular file.
func resolveArtifact(info *projectinfo.ProjectInfo, t projectinfo.AnalysisType) string {
	r, ok := info.TryGetAnalysisResult(t)
	if !ok || lockedfile.CheckPath(r.Location) != nil {
		return ""
	}
	fi, err := os.Stat(r.Location)
	if err != nil || fi.IsDir() {
		return ""
	}
	return r.Location
}

// dedupe drops repeated entries, keeping the first occurrence.
func dedupe(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	out := files[:0]
	for _, f := range files {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
