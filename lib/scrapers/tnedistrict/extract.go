package tnedistrict

import (
	"regexp"
	"strings"

	"certassist-backend/lib/htmlutil"
)

// label -> field key, in matching priority order. Substring matching is
// case sensitive on purpose: the portal renders these headers verbatim
// and lowercase occurrences in page chrome should not bind.
var fieldLabels = []struct {
	label string
	key   string
}{
	{"Application Number", FieldAppNo},
	{"Applicant Name", FieldApplicantName},
	{"Father Name", FieldFatherName},
	{"Father/Guardian Name", FieldFatherName},
	{"Gender", FieldGender},
	{"Request For", FieldService},
	{"Date of Request", FieldRequestDate},
	{"Status", FieldStatusText},
	{"Remarks", FieldRemarks},
}

var appNoPattern = regexp.MustCompile(`^TN-[0-9A-Za-z]+`)
var multiSpace = regexp.MustCompile(`\s{2,}`)

// Extract parses the rendered result pane into the fixed field schema.
// Structured table rows are applied first since they disambiguate
// label/value pairs better than free text; the visible body text is the
// degraded path when the DOM gives us nothing usable. Every field is
// first-match-wins: repeated labels occur in page chrome and must not
// overwrite a value already found.
func Extract(text string, rows []htmlutil.LabelRow) map[string]string {
	fields := map[string]string{}

	for _, row := range rows {
		assignLabeled(fields, row.Label, row.Value)
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		extractLine(fields, line)
	}

	if _, ok := fields[FieldAppNo]; !ok {
		if appNo := scanForAppNo(text); appNo != "" {
			fields[FieldAppNo] = appNo
		}
	}

	return fields
}

func tokenize(line string) []string {
	var parts []string
	if strings.Contains(line, "\t") {
		parts = strings.Split(line, "\t")
	} else {
		parts = multiSpace.Split(line, -1)
	}

	tokens := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// extractLine attributes one line to fields. Composite lines carrying two
// label/value pairs (e.g. applicant and father name on the same line) are
// handled positionally: each label token binds the token right after it.
func extractLine(fields map[string]string, line string) {
	tokens := tokenize(line)

	for i, tok := range tokens {
		label, key, ok := matchLabel(tok)
		if !ok {
			continue
		}
		if _, set := fields[key]; set {
			continue
		}

		// value embedded in the same token, e.g. "Status Application Approved"
		idx := strings.Index(tok, label)
		if inline := strings.TrimSpace(tok[idx+len(label):]); inline != "" {
			fields[key] = inline
			continue
		}

		if i+1 >= len(tokens) {
			continue
		}
		next := tokens[i+1]
		if _, _, isLabel := matchLabel(next); isLabel {
			continue
		}
		fields[key] = next
	}
}

func matchLabel(token string) (label, key string, ok bool) {
	for _, fl := range fieldLabels {
		if strings.Contains(token, fl.label) {
			return fl.label, fl.key, true
		}
	}
	return "", "", false
}

func assignLabeled(fields map[string]string, label, value string) {
	if value == "" {
		return
	}
	for _, fl := range fieldLabels {
		if !strings.Contains(label, fl.label) {
			continue
		}
		if _, set := fields[fl.key]; !set {
			fields[fl.key] = value
		}
		return
	}
}

// scanForAppNo is the fallback when no label bound the application
// number: adopt the first token matching the identifier prefix pattern,
// trimming trailing punctuation.
func scanForAppNo(text string) string {
	for _, field := range strings.Fields(text) {
		if appNoPattern.MatchString(field) {
			return strings.TrimRight(field, ".,;:)")
		}
	}
	return ""
}
