package report

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMinLength is the minimum number of trimmed characters in a draft.
	DefaultMinLength = 40
	// DefaultMinKeywords is the number of distinct keywords a draft must mention.
	DefaultMinKeywords = 2
)

// DefaultKeywords is the heuristic vocabulary used to recognise a medical report.
var DefaultKeywords = []string{
	"heart", "bp", "blood pressure", "oxygen", "respiratory", "lungs", "fever",
	"asthma", "cardiac", "anxiety", "depression", "pulmonary", "diagnosis",
	"treatment", "symptom", "patient", "pulse", "vitals", "breathing", "mri",
	"ct", "x-ray",
}

// Reason explains why a draft was rejected.
type Reason string

const (
	ReasonTooShort   Reason = "too short"
	ReasonNotMedical Reason = "not a medical report"
)

// Verdict is the outcome of validating a draft. The zero value is Valid.
type Verdict struct {
	Reason Reason
}

// Valid is the verdict for an accepted draft.
var Valid = Verdict{}

// Invalid returns a rejecting verdict.
func Invalid(reason Reason) Verdict {
	return Verdict{Reason: reason}
}

func (v Verdict) IsValid() bool { return v.Reason == "" }

// Message is the sentence shown next to the input field.
func (v Verdict) Message() string {
	switch v.Reason {
	case "":
		return ""
	case ReasonTooShort:
		return "Report is too short. Please paste the full medical report."
	case ReasonNotMedical:
		return "This doesn't look like a medical report. Include symptoms, vitals or a diagnosis."
	default:
		return string(v.Reason)
	}
}

// Validator checks whether a draft looks like a medical report.
// It holds no mutable state; Validate is safe for concurrent use.
type Validator struct {
	MinLength   int
	MinKeywords int
	wordStart   bool
	keywords    []keyword
}

type keyword struct {
	term string
	re   *regexp.Regexp
}

// Option adjusts a Validator built by NewValidator.
type Option func(*Validator)

// WithWordStart only counts a keyword that begins a word, so "doctor" no longer
// counts as "ct". Off by default: keywords match anywhere in the text.
func WithWordStart() Option {
	return func(v *Validator) { v.wordStart = true }
}

// NewValidator builds a validator. Non-positive thresholds and an empty keyword
// list fall back to the defaults.
func NewValidator(minLength, minKeywords int, keywords []string, opts ...Option) *Validator {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if minKeywords <= 0 {
		minKeywords = DefaultMinKeywords
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	v := &Validator{MinLength: minLength, MinKeywords: minKeywords}
	for _, opt := range opts {
		opt(v)
	}
	seen := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		term := strings.ToLower(strings.TrimSpace(k))
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		kw := keyword{term: term}
		if v.wordStart {
			kw.re = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term))
		}
		v.keywords = append(v.keywords, kw)
	}
	return v
}

// DefaultValidator uses the built-in thresholds and vocabulary.
func DefaultValidator() *Validator {
	return NewValidator(DefaultMinLength, DefaultMinKeywords, DefaultKeywords)
}

// Validate applies the length rule, then the keyword rule.
func (v *Validator) Validate(text string) Verdict {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < v.MinLength {
		return Invalid(ReasonTooShort)
	}
	if len(v.Matches(trimmed)) < v.MinKeywords {
		return Invalid(ReasonNotMedical)
	}
	return Valid
}

// Matches returns the distinct keywords found in text, in vocabulary order.
// Matching is case-insensitive.
func (v *Validator) Matches(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, k := range v.keywords {
		var ok bool
		if k.re != nil {
			ok = k.re.MatchString(text)
		} else {
			ok = strings.Contains(lower, k.term)
		}
		if ok {
			found = append(found, k.term)
		}
	}
	return found
}

// Keywords returns the normalised vocabulary.
func (v *Validator) Keywords() []string {
	out := make([]string, len(v.keywords))
	for i, k := range v.keywords {
		out[i] = k.term
	}
	return out
}
