// Package lang provides a language registry mapping file extensions to
// tree-sitter languages and their embedded query files.
package lang

import (
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

//go:embed queries/*.scm
var queryFS embed.FS

var whitespaceRe = regexp.MustCompile(`\s+`)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name string
	// Extensions are translation unit extensions; headers are never
	// indexed on their own.
	Extensions       []string
	HeaderExtensions []string
	lang             *sitter.Language
	queryOnce        sync.Once
	query            *sitter.Query
	queryErr         error
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// GetGuardQuery returns the compiled header guard query (safe to share across goroutines).
func (l *Language) GetGuardQuery() (*sitter.Query, error) {
	l.queryOnce.Do(func() {
		data, err := queryFS.ReadFile(fmt.Sprintf("queries/%s.scm", l.Name))
		if err != nil {
			l.queryErr = fmt.Errorf("reading query file: %w", err)
			return
		}
		q, err := sitter.NewQuery(data, l.lang)
		if err != nil {
			l.queryErr = fmt.Errorf("compiling query: %w", err)
			return
		}
		l.query = q
	})
	return l.query, l.queryErr
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var (
	extensionMap  map[string]string
	headerMap     map[string]bool
	extensionOnce sync.Once
)

func buildMaps() {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		headerMap = make(map[string]bool)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
			for _, ext := range l.HeaderExtensions {
				headerMap[ext] = true
			}
		}
	})
}

// ForExtension returns the language name for a translation unit extension,
// or "" if unsupported.
func ForExtension(ext string) string {
	buildMaps()
	return extensionMap[strings.ToLower(ext)]
}

// IsHeader reports whether ext is a known header extension.
func IsHeader(ext string) bool {
	buildMaps()
	return headerMap[strings.ToLower(ext)]
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
