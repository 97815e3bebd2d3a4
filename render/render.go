// Package render turns analysis markdown into sanitised HTML sections.
package render

import (
	"bytes"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"medagentx/report"
)

// Titles are the fixed section headings, keyed by specialty.
var Titles = map[report.Specialty]string{
	report.Cardiologist:  "🫀 Cardiologist's Report",
	report.Psychologist:  "🧠 Psychologist's Report",
	report.Pulmonologist: "🫁 Pulmonologist's Report",
	report.Summary:       "🧾 Final MDT Summary",
}

// Section is one rendered report field.
type Section struct {
	Key   report.Specialty `json:"key"`
	Title string           `json:"title"`
	HTML  template.HTML    `json:"html"`
}

// Renderer converts markdown with goldmark and strips active content with bluemonday.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func New() *Renderer {
	return &Renderer{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: bluemonday.UGCPolicy(),
	}
}

// Markdown converts src into a sanitised HTML fragment. Empty input yields "".
func (r *Renderer) Markdown(src string) (template.HTML, error) {
	if src == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	// sanitised output is safe to insert as raw markup
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes())), nil
}

// Sections renders every field of res in display order. A missing field renders
// as an empty section.
func (r *Renderer) Sections(res report.AnalysisResult) ([]Section, error) {
	out := make([]Section, 0, len(report.Specialties))
	for _, s := range report.Specialties {
		html, err := r.Markdown(res.Field(s))
		if err != nil {
			return nil, err
		}
		out = append(out, Section{Key: s, Title: Titles[s], HTML: html})
	}
	return out, nil
}
