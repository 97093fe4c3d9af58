// Package fingerprint computes the invalidation fingerprints of a
// translation unit: one over the values of its used defines and one over the
// contents of the files it read.
package fingerprint

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/zeebo/xxh3"
)

// undefined marks a used define with no command line value. It cannot occur
// in a real value because values never contain NUL.
const undefined = "\x00undefined"

// Defines hashes the used define names in order together with their current
// command line value.
func Defines(used []string, defines map[string]string) uint64 {
	h := xxh3.New()
	for _, name := range used {
		val, ok := defines[name]
		if !ok {
			val = undefined
		}
		writeString(h, name)
		writeString(h, val)
	}
	return h.Sum64()
}

// Files hashes the paths and contents of files in sorted path order.
func Files(paths []string) (uint64, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	h := xxh3.New()
	for _, p := range sorted {
		writeString(h, p)
		if err := copyFile(h, p); err != nil {
			return 0, fmt.Errorf("fingerprint %s: %w", p, err)
		}
	}
	return h.Sum64(), nil
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := io.Copy(w, f)
	if err != nil {
		return err
	}
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(n))
	_, err = w.Write(size[:])
	return err
}

// writeString writes a length-prefixed string so adjacent fields cannot
// collide.
func writeString(h *xxh3.Hasher, s string) {
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(len(s)))
	h.Write(size[:])
	h.WriteString(s)
}
