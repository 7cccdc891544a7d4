package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Template carries operator-provided metadata defaults for catalog entries.
// Dataset templates match on KPI, distribution templates on file_pattern.
type Template struct {
	KPI          string     `json:"KPI,omitempty"`
	FilePattern  string     `json:"file_pattern,omitempty"`
	DatasetTitle string     `json:"dataset_title,omitempty"`
	Description  string     `json:"description,omitempty"`
	Keywords     stringList `json:"keywords,omitempty"`
	License      string     `json:"license,omitempty"`
	Format       string     `json:"format,omitempty"`
	AuthorName   string     `json:"author_name,omitempty"`
	AuthorEmail  string     `json:"author_email,omitempty"`
	Theme        string     `json:"theme,omitempty"`
	Publisher    string     `json:"publisher,omitempty"`
}

// stringList accepts both a JSON string and a list of strings, since
// hand-written template files use either.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*s = []string{single}
	return nil
}

// LoadTemplates reads a template file holding a JSON list or a single
// object. A missing file yields no templates, not an error.
func LoadTemplates(path string) ([]Template, error) {
	if path == "" {
		return nil, nil
	}
	// #nosec G304 -- template path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read templates %s: %w", path, err)
	}
	var list []Template
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var single Template
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}
	return []Template{single}, nil
}

var (
	tokenSplitRe  = regexp.MustCompile(`[_\-.]+`)
	placeholderRe = regexp.MustCompile(`\{.*?\}`)
)

// matchDistribution scores templates by the share of their file_pattern
// tokens present in the file name and returns the best match above the
// threshold.
func matchDistribution(filename string, tmpls []Template) *Template {
	if filename == "" {
		return nil
	}
	fileTokens := tokenSet(filename)

	var best *Template
	bestScore := 0.0
	for i := range tmpls {
		pattern := placeholderRe.ReplaceAllString(tmpls[i].FilePattern, "")
		patternTokens := tokenSet(pattern)
		if len(patternTokens) == 0 {
			continue
		}
		common := 0
		for tok := range patternTokens {
			if fileTokens[tok] {
				common++
			}
		}
		score := float64(common) / float64(len(patternTokens))
		if score > 0.40 && score > bestScore {
			bestScore = score
			best = &tmpls[i]
		}
	}
	return best
}

// findDatasetTemplate matches a dataset template by its KPI field.
func findDatasetTemplate(topic string, tmpls []Template) *Template {
	if topic == "" {
		return nil
	}
	for i := range tmpls {
		if strings.EqualFold(strings.TrimSpace(tmpls[i].KPI), strings.TrimSpace(topic)) {
			return &tmpls[i]
		}
	}
	return nil
}

// expand substitutes {placeholder} tokens from the bundle context.
func expand(s string, ctx map[string]string) string {
	for key, val := range ctx {
		s = strings.ReplaceAll(s, "{"+key+"}", val)
	}
	return s
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenSplitRe.Split(strings.ToLower(s), -1) {
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}
