// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/macroindex/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a Report into TOON format. The occurrences table is only
// written when the report carries occurrences.
func Encode(r *model.Report) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("root: %s", encodeValue(r.Root)))

	var unitRows [][]string
	var usedRows [][]string
	for i := range r.Units {
		u := &r.Units[i]
		fp := ""
		if u.Status != model.Failed {
			fp = fmt.Sprintf("%016x", u.Fingerprint)
		}
		unitRows = append(unitRows, []string{
			u.Path,
			u.Language,
			fp,
			fmt.Sprintf("%d", len(u.Includes)),
			fmt.Sprintf("%d", len(u.Macros)),
			string(u.Status),
		})
		for _, name := range u.UsedDefines {
			usedRows = append(usedRows, []string{u.Path, name})
		}
	}
	parts = append(parts, formatTabular("units",
		[]string{"path", "language", "fingerprint", "includes", "symbols", "status"}, unitRows))

	var headerRows [][]string
	for i := range r.Headers {
		h := &r.Headers[i]
		headerRows = append(headerRows, []string{
			h.Path,
			fmt.Sprintf("%.4f", h.Rank),
			fmt.Sprintf("%d", h.IncludedBy),
		})
	}
	parts = append(parts, formatTabular("headers", []string{"path", "rank", "included_by"}, headerRows))

	var macroRows [][]string
	for _, m := range r.Macros {
		macroRows = append(macroRows, []string{m.USR, m.Name})
	}
	parts = append(parts, formatTabular("macros", []string{"usr", "name"}, macroRows))

	parts = append(parts, formatTabular("used_defines", []string{"unit", "name"}, usedRows))

	if len(r.Occurrences) > 0 {
		var occRows [][]string
		for _, o := range r.Occurrences {
			occRows = append(occRows, []string{
				o.File,
				fmt.Sprintf("%d", o.Line),
				fmt.Sprintf("%d", o.Column),
				o.Kind.String(),
				o.Name,
			})
		}
		parts = append(parts, formatTabular("occurrences",
			[]string{"file", "line", "column", "kind", "name"}, occRows))
	}

	return strings.Join(parts, "\n")
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
