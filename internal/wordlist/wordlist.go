// Package wordlist loads explicit candidate lists.
package wordlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// maxLine bounds a single wordlist entry.
const maxLine = 1 << 20

// Load resolves a source that is either a path to a newline separated file
// or a comma separated literal list. A source naming an existing file is
// always read as a file. Entries are trimmed and blanks are dropped.
func Load(source string) ([]string, error) {
	if source == "" {
		return nil, nil
	}
	path, err := homedir.Expand(source)
	if err != nil {
		path = source
	}
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return nil, fmt.Errorf("wordlist %q is a directory", source)
	case err == nil:
		return ReadFile(path)
	case errors.Is(err, fs.ErrNotExist):
		return SplitList(source), nil
	default:
		return nil, fmt.Errorf("checking wordlist %q: %w", source, err)
	}
}

// ReadFile reads a newline separated list from path.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wordlist: %w", err)
	}
	defer f.Close()

	lines, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("reading wordlist %s: %w", path, err)
	}
	return lines, nil
}

// Parse reads one entry per line.
func Parse(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

// SplitList splits a comma separated literal list.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Merge concatenates lists, keeping the first occurrence of each entry.
func Merge(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, s := range list {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
