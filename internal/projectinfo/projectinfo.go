// Package projectinfo reads and writes the descriptor each built project
// leaves in its dump folder.
package projectinfo

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scanbridge/internal/lockedfile"
	"scanbridge/internal/logging"
	"scanbridge/internal/xmldoc"
)

const rootElement = "ProjectInfo"

// ProjectType classifies a built project.
type ProjectType string

const (
	ProjectTypeUnknown ProjectType = ""
	ProjectTypeProduct ProjectType = "Product"
	ProjectTypeTest    ProjectType = "Test"
)

// ParseProjectType maps the document value to a ProjectType.
// Anything other than Product or Test is unknown.
func ParseProjectType(s string) ProjectType {
	switch {
	case strings.EqualFold(s, string(ProjectTypeTest)):
		return ProjectTypeTest
	case strings.EqualFold(s, string(ProjectTypeProduct)):
		return ProjectTypeProduct
	default:
		return ProjectTypeUnknown
	}
}

// AnalysisType identifies the kind of artifact an AnalysisResult points at.
// The set is open; unrecognised ids are kept as is.
type AnalysisType string

const (
	ManagedCompilerInputs    AnalysisType = "ManagedCompilerInputs"    // list of compiled source files
	ContentFiles             AnalysisType = "ContentFiles"             // list of content files
	FxCop                    AnalysisType = "FxCop"                    // static analysis report
	VisualStudioCodeCoverage AnalysisType = "VisualStudioCodeCoverage" // coverage report
)

// AnalysisResult points at one artifact produced by the build.
// Location may not exist on disk.
type AnalysisResult struct {
	ID       AnalysisType `json:"id"`
	Location string       `json:"location"`
}

// ProjectInfo is the per-project descriptor.
type ProjectInfo struct {
	ProjectGUID     uuid.UUID        `json:"projectGuid"`
	ProjectName     string           `json:"projectName"`
	ProjectLanguage string           `json:"projectLanguage,omitempty"`
	ProjectType     ProjectType      `json:"projectType"`
	FullPath        string           `json:"fullPath"`
	AnalysisResults []AnalysisResult `json:"analysisResults"`
}

// IsTest reports whether the build step marked the project as a test project.
func (p *ProjectInfo) IsTest() bool {
	return p.ProjectType == ProjectTypeTest
}

// TryGetAnalysisResult returns the first result of the given type.
func (p *ProjectInfo) TryGetAnalysisResult(t AnalysisType) (AnalysisResult, bool) {
	for _, r := range p.AnalysisResults {
		if r.ID == t {
			return r, true
		}
	}
	return AnalysisResult{}, false
}

// AddAnalysisResult appends a result.
func (p *ProjectInfo) AddAnalysisResult(t AnalysisType, location string) {
	p.AnalysisResults = append(p.AnalysisResults, AnalysisResult{ID: t, Location: location})
}

// Load reads the descriptor at path.
func Load(ctx context.Context, path string, opts lockedfile.Options) (*ProjectInfo, error) {
	if err := lockedfile.CheckPath(path); err != nil {
		return nil, fmt.Errorf("load project info: %w", err)
	}

	data, err := lockedfile.ReadFile(ctx, path, opts)
	if err != nil {
		return nil, fmt.Errorf("load project info: %w", err)
	}

	info, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse project info %s: %w", path, err)
	}
	return info, nil
}

// TryLoad is Load for callers that treat a missing descriptor as "none":
// it returns (nil, nil) when path does not exist.
func TryLoad(ctx context.Context, path string, opts lockedfile.Options) (*ProjectInfo, error) {
	info, err := Load(ctx, path, opts)
	if errors.Is(err, fs.ErrNotExist) {
		logging.For(opts.Logger, logging.CategoryDescriptor).Debug("no project info", zap.String("path", path))
		return nil, nil
	}
	return info, err
}

// Save writes the descriptor to path.
func (p *ProjectInfo) Save(ctx context.Context, path string, opts lockedfile.Options) error {
	if err := lockedfile.CheckPath(path); err != nil {
		return fmt.Errorf("save project info: %w", err)
	}

	data, err := p.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode project info: %w", err)
	}
	if err := lockedfile.WriteFile(ctx, path, data, 0644, opts); err != nil {
		return fmt.Errorf("save project info: %w", err)
	}
	return nil
}

// Parse decodes a descriptor document, ignoring unknown elements.
func Parse(r io.Reader) (*ProjectInfo, error) {
	d := xmldoc.NewDecoder(r)
	if err := d.Root(rootElement); err != nil {
		return nil, err
	}

	info := &ProjectInfo{AnalysisResults: []AnalysisResult{}}
	err := d.Children(func(el xml.StartElement) error {
		var err error
		switch el.Name.Local {
		case "ProjectName":
			info.ProjectName, err = d.Text()
		case "ProjectLanguage":
			info.ProjectLanguage, err = d.Text()
		case "ProjectType":
			var s string
			s, err = d.Text()
			info.ProjectType = ParseProjectType(strings.TrimSpace(s))
		case "ProjectGuid":
			var s string
			if s, err = d.Text(); err == nil {
				info.ProjectGUID, err = parseGUID(s)
			}
		case "FullPath":
			info.FullPath, err = d.Text()
		case "AnalysisResults":
			err = parseAnalysisResults(d, &info.AnalysisResults)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func parseGUID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid ProjectGuid %q: %w", s, err)
	}
	return id, nil
}

func parseAnalysisResults(d *xmldoc.Decoder, into *[]AnalysisResult) error {
	return d.Children(func(el xml.StartElement) error {
		if el.Name.Local != "AnalysisResult" {
			return d.Skip()
		}
		id, _ := xmldoc.Attr(el, "Id")
		location, _ := xmldoc.Attr(el, "Location")
		*into = append(*into, AnalysisResult{ID: AnalysisType(id), Location: location})
		return d.Skip()
	})
}

type projectInfoDoc struct {
	XMLName         xml.Name            `xml:"ProjectInfo"`
	Xmlns           string              `xml:"xmlns,attr"`
	ProjectName     string              `xml:"ProjectName,omitempty"`
	ProjectLanguage string              `xml:"ProjectLanguage,omitempty"`
	ProjectType     string              `xml:"ProjectType,omitempty"`
	ProjectGUID     string              `xml:"ProjectGuid"`
	FullPath        string              `xml:"FullPath,omitempty"`
	AnalysisResults []analysisResultDoc `xml:"AnalysisResults>AnalysisResult"`
}

type analysisResultDoc struct {
	ID       string `xml:"Id,attr"`
	Location string `xml:"Location,attr"`
}

// Marshal renders the descriptor document. It fails, naming the field,
// when a value cannot be stored as XML text.
func (p *ProjectInfo) Marshal() ([]byte, error) {
	if err := p.checkText(); err != nil {
		return nil, err
	}
	doc := projectInfoDoc{
		Xmlns:           xmldoc.Namespace,
		ProjectName:     p.ProjectName,
		ProjectLanguage: p.ProjectLanguage,
		ProjectType:     string(p.ProjectType),
		ProjectGUID:     p.ProjectGUID.String(),
		FullPath:        p.FullPath,
	}
	for _, r := range p.AnalysisResults {
		doc.AnalysisResults = append(doc.AnalysisResults, analysisResultDoc{ID: string(r.ID), Location: r.Location})
	}
	return xmldoc.Encode(doc)
}

func (p *ProjectInfo) checkText() error {
	fields := []struct{ name, value string }{
		{"ProjectName", p.ProjectName},
		{"ProjectLanguage", p.ProjectLanguage},
		{"ProjectType", string(p.ProjectType)},
		{"FullPath", p.FullPath},
	}
	for _, f := range fields {
		if err := xmldoc.CheckText(f.name, f.value); err != nil {
			return err
		}
	}
	for i, r := range p.AnalysisResults {
		if err := xmldoc.CheckText(fmt.Sprintf("AnalysisResults[%d].Id", i), string(r.ID)); err != nil {
			return err
		}
		if err := xmldoc.CheckText(fmt.Sprintf("AnalysisResults[%d].Location", i), r.Location); err != nil {
			return err
		}
	}
	return nil
}
