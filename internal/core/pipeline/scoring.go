package pipeline

import (
	"strings"
	"unicode"
)

// stopwords are tokens too common to count as job-description keywords.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true,
	"have": true, "in": true, "is": true, "it": true, "of": true, "on": true,
	"or": true, "our": true, "that": true, "the": true, "their": true,
	"this": true, "to": true, "we": true, "will": true, "with": true,
	"you": true, "your": true, "years": true, "experience": true,
	"looking": true, "required": true, "preferred": true, "must": true,
	"plus": true, "strong": true, "ability": true, "work": true,
	"team": true, "role": true, "job": true, "candidate": true,
}

// tokenize lowercases text and splits it into keyword tokens. '+' and '#'
// stay inside tokens so "c++" and "c#" survive.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
}

// Keywords extracts the unique, stopword-filtered tokens of a job
// description in first-appearance order.
func Keywords(jobDescription string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range tokenize(jobDescription) {
		if len(tok) < 2 || stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// EvidenceScore measures lexical overlap between the resume and the job
// description keywords: the score is the percentage of keywords present in
// the resume, and gaps lists the keywords that are absent.
func EvidenceScore(resumeText string, keywords []string) (score int, gaps []string) {
	if len(keywords) == 0 {
		return 0, nil
	}

	present := make(map[string]bool)
	for _, tok := range tokenize(resumeText) {
		present[tok] = true
	}

	hits := 0
	for _, kw := range keywords {
		if present[kw] {
			hits++
		} else {
			gaps = append(gaps, kw)
		}
	}
	return (hits*100 + len(keywords)/2) / len(keywords), gaps
}

// BlendScore combines the model's self-reported score with the locally
// computed evidence score. The evidence score anchors the result when the
// model returns nothing parseable (modelScore outside 0..100).
func BlendScore(modelScore, evidenceScore int) int {
	if modelScore < 0 || modelScore > 100 {
		return clampScore(evidenceScore)
	}
	return clampScore((modelScore + evidenceScore + 1) / 2)
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
