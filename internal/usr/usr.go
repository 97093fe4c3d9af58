// Package usr generates unified symbol resolution ids for macros in the
// format clang's indexer uses, so results can be joined with clang output.
package usr

import (
	"path"
	"strconv"
	"strings"

	"github.com/phobologic/macroindex/internal/model"
)

const prefix = "c:"

// Generator implements macros.USRGenerator.
type Generator struct{}

// Generate returns the USR of macro name defined or referenced at pos.
// Locations in system headers and virtual buffers are left out of the id.
func (Generator) Generate(name string, pos model.Position) (string, bool) {
	return ForMacro(name, pos)
}

// ForMacro builds "c:<file>@<offset>@macro@<name>". It fails for an invalid
// identifier or a position without a buffer.
func ForMacro(name string, pos model.Position) (string, bool) {
	if !isIdentifier(name) || pos.File == "" {
		return "", false
	}
	var b strings.Builder
	b.WriteString(prefix)
	if pos.IsFile() && !pos.System {
		b.WriteString(path.Base(strings.ReplaceAll(pos.File, "\\", "/")))
		b.WriteByte('@')
		b.WriteString(strconv.Itoa(pos.Offset))
	}
	b.WriteString("@macro@")
	b.WriteString(name)
	return b.String(), true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' && i > 0:
		case c >= 0x80:
		default:
			return false
		}
	}
	return true
}
