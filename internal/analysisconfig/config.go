// Package analysisconfig persists the run configuration shared by every
// step of one analysis run.
//
// The document is written once by an upstream step and then read by many
// concurrent consumers during a parallel build, so Load goes through
// lockedfile and tolerates a writer mid-save. Parsing walks an allow-list of
// elements; anything a newer writer adds is skipped on load and never
// written back on save.
package analysisconfig

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"scanbridge/internal/lockedfile"
	"scanbridge/internal/logging"
	"scanbridge/internal/xmldoc"
)

const rootElement = "AnalysisConfig"

// AnalysisConfig is the run configuration.
type AnalysisConfig struct {
	SonarConfigDir      string `yaml:"sonarConfigDir"`
	SonarOutputDir      string `yaml:"sonarOutputDir"`
	SonarProjectKey     string `yaml:"sonarProjectKey"`
	SonarProjectVersion string `yaml:"sonarProjectVersion"`
	SonarProjectName    string `yaml:"sonarProjectName"`

	// Settings fetched from the analysis server
	ServerSettings AnalysisProperties `yaml:"serverSettings"`

	// Settings supplied on the command line or by earlier build steps
	LocalSettings AnalysisProperties `yaml:"localSettings"`

	AnalyzersSettings []AnalyzerSettings `yaml:"analyzersSettings"`

	// Free-form extension point
	AdditionalConfig []ConfigSetting `yaml:"additionalConfig"`
}

// AnalyzerSettings configures one analyzer package.
type AnalyzerSettings struct {
	RuleSetFilePath       string   `yaml:"ruleSetFilePath"`
	AnalyzerAssemblyPaths []string `yaml:"analyzerAssemblyPaths"`
	AdditionalFilePaths   []string `yaml:"additionalFilePaths"`
}

// ConfigSetting is an entry of AdditionalConfig.
type ConfigSetting struct {
	ID    string `yaml:"id"`
	Value string `yaml:"value"`
}

// New returns an empty configuration whose collections are all non-nil.
func New() *AnalysisConfig {
	c := &AnalysisConfig{}
	c.normalize()
	return c
}

func (c *AnalysisConfig) normalize() {
	if c.ServerSettings == nil {
		c.ServerSettings = AnalysisProperties{}
	}
	if c.LocalSettings == nil {
		c.LocalSettings = AnalysisProperties{}
	}
	if c.AnalyzersSettings == nil {
		c.AnalyzersSettings = []AnalyzerSettings{}
	}
	for i := range c.AnalyzersSettings {
		a := &c.AnalyzersSettings[i]
		if a.AnalyzerAssemblyPaths == nil {
			a.AnalyzerAssemblyPaths = []string{}
		}
		if a.AdditionalFilePaths == nil {
			a.AdditionalFilePaths = []string{}
		}
	}
	if c.AdditionalConfig == nil {
		c.AdditionalConfig = []ConfigSetting{}
	}
}

// GetConfigValue returns the AdditionalConfig value for id (case-insensitive).
func (c *AnalysisConfig) GetConfigValue(id, def string) string {
	for _, s := range c.AdditionalConfig {
		if strings.EqualFold(s.ID, id) {
			return s.Value
		}
	}
	return def
}

// SetConfigValue replaces or appends an AdditionalConfig entry.
func (c *AnalysisConfig) SetConfigValue(id, value string) {
	for i := range c.AdditionalConfig {
		if strings.EqualFold(c.AdditionalConfig[i].ID, id) {
			c.AdditionalConfig[i].Value = value
			return
		}
	}
	c.AdditionalConfig = append(c.AdditionalConfig, ConfigSetting{ID: id, Value: value})
}

// Load reads the run configuration at path.
// A missing file yields an error satisfying errors.Is(err, fs.ErrNotExist);
// a contended file may yield a *lockedfile.LockTimeoutError.
func Load(ctx context.Context, path string, opts lockedfile.Options) (*AnalysisConfig, error) {
	if err := lockedfile.CheckPath(path); err != nil {
		return nil, fmt.Errorf("load analysis config: %w", err)
	}

	data, err := lockedfile.ReadFile(ctx, path, opts)
	if err != nil {
		return nil, fmt.Errorf("load analysis config: %w", err)
	}

	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse analysis config %s: %w", path, err)
	}

	logging.For(opts.Logger, logging.CategoryConfig).Debug("loaded analysis config",
		zap.String("path", path),
		zap.Int("localSettings", len(cfg.LocalSettings)),
		zap.Int("serverSettings", len(cfg.ServerSettings)))
	return cfg, nil
}

// LoadFromDir loads the run configuration named fileName inside dir.
func LoadFromDir(ctx context.Context, dir, fileName string, opts lockedfile.Options) (*AnalysisConfig, error) {
	if err := lockedfile.CheckPath(dir); err != nil {
		return nil, fmt.Errorf("load analysis config: %w", err)
	}
	return Load(ctx, filepath.Join(dir, fileName), opts)
}

// Save writes the configuration to path, replacing any existing file.
func (c *AnalysisConfig) Save(ctx context.Context, path string, opts lockedfile.Options) error {
	if err := lockedfile.CheckPath(path); err != nil {
		return fmt.Errorf("save analysis config: %w", err)
	}

	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode analysis config: %w", err)
	}
	if err := lockedfile.WriteFile(ctx, path, data, 0644, opts); err != nil {
		return fmt.Errorf("save analysis config: %w", err)
	}

	logging.For(opts.Logger, logging.CategoryConfig).Debug("saved analysis config", zap.String("path", path))
	return nil
}

// Parse decodes a run configuration document. Unknown elements and
// attributes are ignored at every level.
func Parse(r io.Reader) (*AnalysisConfig, error) {
	d := xmldoc.NewDecoder(r)
	if err := d.Root(rootElement); err != nil {
		return nil, err
	}

	cfg := New()
	err := d.Children(func(el xml.StartElement) error {
		var err error
		switch el.Name.Local {
		case "SonarConfigDir":
			cfg.SonarConfigDir, err = d.Text()
		case "SonarOutputDir":
			cfg.SonarOutputDir, err = d.Text()
		case "SonarProjectKey":
			cfg.SonarProjectKey, err = d.Text()
		case "SonarProjectVersion":
			cfg.SonarProjectVersion, err = d.Text()
		case "SonarProjectName":
			cfg.SonarProjectName, err = d.Text()
		case "ServerSettings":
			err = parseProperties(d, &cfg.ServerSettings)
		case "LocalSettings":
			err = parseProperties(d, &cfg.LocalSettings)
		case "AnalyzersSettings":
			err = parseAnalyzersSettings(d, &cfg.AnalyzersSettings)
		case "AdditionalConfig":
			err = parseAdditionalConfig(d, &cfg.AdditionalConfig)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseProperties(d *xmldoc.Decoder, into *AnalysisProperties) error {
	return d.Children(func(el xml.StartElement) error {
		if el.Name.Local != "Property" {
			return d.Skip()
		}
		name, _ := xmldoc.Attr(el, "Name")
		value, err := d.Text()
		if err != nil {
			return err
		}
		*into = append(*into, Property{ID: name, Value: value})
		return nil
	})
}

func parseAnalyzersSettings(d *xmldoc.Decoder, into *[]AnalyzerSettings) error {
	return d.Children(func(el xml.StartElement) error {
		if el.Name.Local != "AnalyzerSettings" {
			return d.Skip()
		}
		s := AnalyzerSettings{
			AnalyzerAssemblyPaths: []string{},
			AdditionalFilePaths:   []string{},
		}
		err := d.Children(func(child xml.StartElement) error {
			var err error
			switch child.Name.Local {
			case "RuleSetFilePath":
				s.RuleSetFilePath, err = d.Text()
			case "AnalyzerAssemblyPaths":
				err = parsePaths(d, &s.AnalyzerAssemblyPaths)
			case "AdditionalFilePaths":
				err = parsePaths(d, &s.AdditionalFilePaths)
			default:
				err = d.Skip()
			}
			return err
		})
		if err != nil {
			return err
		}
		*into = append(*into, s)
		return nil
	})
}

func parsePaths(d *xmldoc.Decoder, into *[]string) error {
	return d.Children(func(el xml.StartElement) error {
		if el.Name.Local != "Path" {
			return d.Skip()
		}
		p, err := d.Text()
		if err != nil {
			return err
		}
		*into = append(*into, p)
		return nil
	})
}

func parseAdditionalConfig(d *xmldoc.Decoder, into *[]ConfigSetting) error {
	return d.Children(func(el xml.StartElement) error {
		if el.Name.Local != "ConfigSetting" {
			return d.Skip()
		}
		id, _ := xmldoc.Attr(el, "Id")
		value, _ := xmldoc.Attr(el, "Value")
		*into = append(*into, ConfigSetting{ID: id, Value: value})
		return d.Skip()
	})
}
