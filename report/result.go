package report

// Specialty names one of the four sections returned by the analysis service.
type Specialty string

const (
	Cardiologist  Specialty = "cardiologist"
	Psychologist  Specialty = "psychologist"
	Pulmonologist Specialty = "pulmonologist"
	Summary       Specialty = "summary"
)

// Specialties lists the sections in display order.
var Specialties = []Specialty{Cardiologist, Psychologist, Pulmonologist, Summary}

// AnalysisResult is the four-field payload produced by the analysis service.
// Each field holds markdown source.
type AnalysisResult struct {
	Cardiologist  string `json:"cardiologist"`
	Psychologist  string `json:"psychologist"`
	Pulmonologist string `json:"pulmonologist"`
	Summary       string `json:"summary"`
}

// Field returns the markdown for s, or "" for an unknown specialty.
func (r AnalysisResult) Field(s Specialty) string {
	switch s {
	case Cardiologist:
		return r.Cardiologist
	case Psychologist:
		return r.Psychologist
	case Pulmonologist:
		return r.Pulmonologist
	case Summary:
		return r.Summary
	default:
		return ""
	}
}
