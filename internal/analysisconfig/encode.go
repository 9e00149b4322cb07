package analysisconfig

import (
	"encoding/xml"
	"fmt"

	"scanbridge/internal/xmldoc"
)

// Wire shapes used only for writing; reading goes through Parse.
type configDoc struct {
	XMLName             xml.Name           `xml:"AnalysisConfig"`
	Xmlns               string             `xml:"xmlns,attr"`
	SonarConfigDir      string             `xml:"SonarConfigDir,omitempty"`
	SonarOutputDir      string             `xml:"SonarOutputDir,omitempty"`
	SonarProjectKey     string             `xml:"SonarProjectKey,omitempty"`
	SonarProjectVersion string             `xml:"SonarProjectVersion,omitempty"`
	SonarProjectName    string             `xml:"SonarProjectName,omitempty"`
	ServerSettings      []propertyDoc      `xml:"ServerSettings>Property"`
	LocalSettings       []propertyDoc      `xml:"LocalSettings>Property"`
	AnalyzersSettings   []analyzerDoc      `xml:"AnalyzersSettings>AnalyzerSettings"`
	AdditionalConfig    []configSettingDoc `xml:"AdditionalConfig>ConfigSetting"`
}

type propertyDoc struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",chardata"`
}

type analyzerDoc struct {
	RuleSetFilePath       string   `xml:"RuleSetFilePath,omitempty"`
	AnalyzerAssemblyPaths []string `xml:"AnalyzerAssemblyPaths>Path"`
	AdditionalFilePaths   []string `xml:"AdditionalFilePaths>Path"`
}

type configSettingDoc struct {
	ID    string `xml:"Id,attr"`
	Value string `xml:"Value,attr"`
}

// Marshal renders the configuration document. It fails, naming the field,
// when a value cannot be stored as XML text.
func (c *AnalysisConfig) Marshal() ([]byte, error) {
	if err := c.checkText(); err != nil {
		return nil, err
	}
	doc := configDoc{
		Xmlns:               xmldoc.Namespace,
		SonarConfigDir:      c.SonarConfigDir,
		SonarOutputDir:      c.SonarOutputDir,
		SonarProjectKey:     c.SonarProjectKey,
		SonarProjectVersion: c.SonarProjectVersion,
		SonarProjectName:    c.SonarProjectName,
		ServerSettings:      propertyDocs(c.ServerSettings),
		LocalSettings:       propertyDocs(c.LocalSettings),
	}
	for _, a := range c.AnalyzersSettings {
		doc.AnalyzersSettings = append(doc.AnalyzersSettings, analyzerDoc(a))
	}
	for _, s := range c.AdditionalConfig {
		doc.AdditionalConfig = append(doc.AdditionalConfig, configSettingDoc(s))
	}
	return xmldoc.Encode(doc)
}

func propertyDocs(props AnalysisProperties) []propertyDoc {
	var docs []propertyDoc
	for _, p := range props {
		docs = append(docs, propertyDoc{Name: p.ID, Value: p.Value})
	}
	return docs
}

func (c *AnalysisConfig) checkText() error {
	fields := []struct{ name, value string }{
		{"SonarConfigDir", c.SonarConfigDir},
		{"SonarOutputDir", c.SonarOutputDir},
		{"SonarProjectKey", c.SonarProjectKey},
		{"SonarProjectVersion", c.SonarProjectVersion},
		{"SonarProjectName", c.SonarProjectName},
	}
	for _, f := range fields {
		if err := xmldoc.CheckText(f.name, f.value); err != nil {
			return err
		}
	}
	if err := checkProperties("ServerSettings", c.ServerSettings); err != nil {
		return err
	}
	if err := checkProperties("LocalSettings", c.LocalSettings); err != nil {
		return err
	}
	for i, a := range c.AnalyzersSettings {
		prefix := fmt.Sprintf("AnalyzersSettings[%d]", i)
		if err := xmldoc.CheckText(prefix+".RuleSetFilePath", a.RuleSetFilePath); err != nil {
			return err
		}
		for j, p := range a.AnalyzerAssemblyPaths {
			if err := xmldoc.CheckText(fmt.Sprintf("%s.AnalyzerAssemblyPaths[%d]", prefix, j), p); err != nil {
				return err
			}
		}
		for j, p := range a.AdditionalFilePaths {
			if err := xmldoc.CheckText(fmt.Sprintf("%s.AdditionalFilePaths[%d]", prefix, j), p); err != nil {
				return err
			}
		}
	}
	for i, s := range c.AdditionalConfig {
		if err := xmldoc.CheckText(fmt.Sprintf("AdditionalConfig[%d].Id", i), s.ID); err != nil {
			return err
		}
		if err := xmldoc.CheckText(fmt.Sprintf("AdditionalConfig[%d].Value", i), s.Value); err != nil {
			return err
		}
	}
	return nil
}

func checkProperties(name string, props AnalysisProperties) error {
	for i, p := range props {
		if err := xmldoc.CheckText(fmt.Sprintf("%s[%d].Name", name, i), p.ID); err != nil {
			return err
		}
		if err := xmldoc.CheckText(fmt.Sprintf("%s[%d] (%s)", name, i, p.ID), p.Value); err != nil {
			return err
		}
	}
	return nil
}
