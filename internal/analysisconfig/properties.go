package analysisconfig

import "strings"

// Property is a single id/value analysis setting.
type Property struct {
	ID    string `yaml:"id"`
	Value string `yaml:"value"`
}

// AnalysisProperties is an ordered settings collection. Lookups by id are
// case-insensitive; uniqueness is a lookup convention and the first match wins.
type AnalysisProperties []Property

// TryGetValue returns the value of the first property whose id matches.
func (p AnalysisProperties) TryGetValue(id string) (string, bool) {
	for _, prop := range p {
		if strings.EqualFold(prop.ID, id) {
			return prop.Value, true
		}
	}
	return "", false
}

// Get returns the value for id, or def when it is not set.
func (p AnalysisProperties) Get(id, def string) string {
	if v, ok := p.TryGetValue(id); ok {
		return v
	}
	return def
}

// Set replaces the value of the first matching property, or appends one.
func (p *AnalysisProperties) Set(id, value string) {
	for i := range *p {
		if strings.EqualFold((*p)[i].ID, id) {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, Property{ID: id, Value: value})
}
