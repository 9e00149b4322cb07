package projectinfo

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanbridge/internal/lockedfile"
	"scanbridge/internal/xmldoc"
)

func TestSaveAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ProjectInfo.xml")

	original := &ProjectInfo{
		ProjectGUID:     uuid.MustParse("4077c120-ab29-4e7e-8b85-7dd8fd2fbd54"),
		ProjectName:     "My.Project.Tests",
		ProjectLanguage: "cs",
		ProjectType:     ProjectTypeTest,
		FullPath:        `c:\src\My.Project.Tests\My.Project.Tests.csproj`,
	}
	original.AddAnalysisResult(ManagedCompilerInputs, `c:\out\1\CompileList.txt`)
	original.AddAnalysisResult(AnalysisType("FutureArtifact"), "future.bin")

	require.NoError(t, original.Save(ctx, path, lockedfile.DefaultOptions()))

	reloaded, err := Load(ctx, path, lockedfile.DefaultOptions())
	require.NoError(t, err)
	if diff := cmp.Diff(original, reloaded); diff != "" {
		t.Errorf("reloaded descriptor mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	for _, path := range []string{"", " \t"} {
		_, err := Load(context.Background(), path, lockedfile.DefaultOptions())
		assert.ErrorIs(t, err, lockedfile.ErrBlankPath)

		err = (&ProjectInfo{}).Save(context.Background(), path, lockedfile.DefaultOptions())
		assert.ErrorIs(t, err, lockedfile.ErrBlankPath)
	}
}

func TestTryLoad_Missing(t *testing.T) {
	info, err := TryLoad(context.Background(), filepath.Join(t.TempDir(), "ProjectInfo.xml"), lockedfile.DefaultOptions())
	assert.NoError(t, err)
	assert.Nil(t, info)

	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "ProjectInfo.xml"), lockedfile.DefaultOptions())
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestParse_IgnoresUnknownElements(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8"?>
<ProjectInfo xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns="http://www.sonarsource.com/msbuild/integration/2015/1">
  <ProjectName>Core</ProjectName>
  <ProjectLanguage>cs</ProjectLanguage>
  <ProjectType>Product</ProjectType>
  <ProjectGuid>{4077C120-AB29-4E7E-8B85-7DD8FD2FBD54}</ProjectGuid>
  <FullPath>c:\src\Core\Core.csproj</FullPath>
  <IsExcluded>false</IsExcluded>
  <NewerField><Nested a="b"/></NewerField>
  <AnalysisResults>
    <AnalysisResult Id="ManagedCompilerInputs" Location="c:\out\files.txt" Extra="x" />
    <Unexpected />
    <AnalysisResult Id="FxCop" Location="c:\out\fxcop.xml"><Child/></AnalysisResult>
  </AnalysisResults>
</ProjectInfo>`

	info, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "Core", info.ProjectName)
	assert.Equal(t, ProjectTypeProduct, info.ProjectType)
	assert.False(t, info.IsTest())
	assert.Equal(t, "4077c120-ab29-4e7e-8b85-7dd8fd2fbd54", info.ProjectGUID.String())
	assert.Equal(t, []AnalysisResult{
		{ID: ManagedCompilerInputs, Location: `c:\out\files.txt`},
		{ID: FxCop, Location: `c:\out\fxcop.xml`},
	}, info.AnalysisResults)
}

func TestParse_InvalidGUID(t *testing.T) {
	_, err := Parse(strings.NewReader(`<ProjectInfo><ProjectGuid>not-a-guid</ProjectGuid></ProjectInfo>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-guid")
}

func TestParse_MinimalDocument(t *testing.T) {
	info, err := Parse(strings.NewReader(`<ProjectInfo/>`))
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, info.ProjectGUID)
	assert.Equal(t, ProjectTypeUnknown, info.ProjectType)
	assert.NotNil(t, info.AnalysisResults)
	assert.Empty(t, info.AnalysisResults)
}

func TestParseProjectType(t *testing.T) {
	tests := map[string]ProjectType{
		"Test":    ProjectTypeTest,
		"test":    ProjectTypeTest,
		"Product": ProjectTypeProduct,
		"":        ProjectTypeUnknown,
		"Library": ProjectTypeUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseProjectType(in), in)
	}
}

func TestTryGetAnalysisResult(t *testing.T) {
	info := &ProjectInfo{}
	info.AddAnalysisResult(ContentFiles, "first.txt")
	info.AddAnalysisResult(ContentFiles, "second.txt")

	r, ok := info.TryGetAnalysisResult(ContentFiles)
	require.True(t, ok)
	assert.Equal(t, "first.txt", r.Location)

	_, ok = info.TryGetAnalysisResult(VisualStudioCodeCoverage)
	assert.False(t, ok)
}

func TestLoad_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ProjectInfo.xml")
	require.NoError(t, os.WriteFile(path, []byte("<ProjectInfo><ProjectName>x"), 0644))

	_, err := TryLoad(context.Background(), path, lockedfile.DefaultOptions())
	require.Error(t, err)
	assert.False(t, errors.Is(err, fs.ErrNotExist))
}

func TestSave_RejectsTextXMLCannotHold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ProjectInfo.xml")

	info := &ProjectInfo{ProjectName: "ok"}
	info.AddAnalysisResult(ManagedCompilerInputs, "c:\\out\x02list.txt")
	err := info.Save(context.Background(), path, lockedfile.DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, xmldoc.ErrInvalidText)
	assert.Contains(t, err.Error(), "AnalysisResults[0].Location")

	_, err = (&ProjectInfo{FullPath: "bad\xffpath"}).Marshal()
	assert.ErrorIs(t, err, xmldoc.ErrInvalidText)
	assert.Contains(t, err.Error(), "FullPath")
}
