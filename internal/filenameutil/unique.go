package filenameutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IncompleteSuffix is appended to the working file of a download still in
// progress, so a completed file and an in-progress one never collide.
const IncompleteSuffix = ".part"

// Unique returns a path guaranteed not to collide with an existing final
// file or in-progress working file, appending "(1)", "(2)", ... before the
// extension as needed. Grounded on the teacher's uniqueFilePath in
// internal/download/manager.go.
func Unique(path string) string {
	if !exists(path) {
		return path
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	name := strings.TrimSuffix(filepath.Base(path), ext)

	base := name
	counter := 1
	if len(name) > 3 && name[len(name)-1] == ')' {
		if openParen := strings.LastIndexByte(name, '('); openParen != -1 {
			numStr := name[openParen+1 : len(name)-1]
			if num, err := strconv.Atoi(numStr); err == nil && num > 0 {
				base = name[:openParen]
				counter = num + 1
			}
		}
	}

	for i := 0; i < 1000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s(%d)%s", base, counter+i, ext))
		if !exists(candidate) {
			return candidate
		}
	}
	return path
}

func exists(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	}
	if _, err := os.Stat(path + IncompleteSuffix); err == nil {
		return true
	}
	return false
}
