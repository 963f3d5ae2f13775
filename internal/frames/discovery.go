package frames

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DiscoverOptions controls which files are picked up from directories.
type DiscoverOptions struct {
	Recursive bool
	Include   []string // glob patterns on base names; empty means all
	Exclude   []string // glob patterns on base names
}

// Sequence is an ordered list of frame files from one source.
type Sequence struct {
	Name  string
	Paths []string
}

// Discover expands files and directories into frame paths. Files named
// explicitly are kept in argument order; files inside a directory are sorted
// naturally by name, so frame_2 comes before frame_10.
func Discover(args []string, opts DiscoverOptions) ([]string, error) {
	seqs, err := DiscoverSequences(args, opts)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, s := range seqs {
		out = append(out, s.Paths...)
	}
	return out, nil
}

// DiscoverSequences groups frames by source: every directory argument is one
// sequence named after the directory, and all loose files form a single
// sequence named "files" at the position of the first loose file.
func DiscoverSequences(args []string, opts DiscoverOptions) ([]Sequence, error) {
	var (
		seqs  []Sequence
		loose = -1
	)
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			paths, err := discoverInDirectory(arg, opts)
			if err != nil {
				return nil, err
			}
			if len(paths) > 0 {
				seqs = append(seqs, Sequence{Name: filepath.Base(filepath.Clean(arg)), Paths: paths})
			}
			continue
		}

		if !IsSupported(arg) || !shouldInclude(arg, opts) {
			continue
		}
		if loose < 0 {
			loose = len(seqs)
			seqs = append(seqs, Sequence{Name: "files"})
		}
		seqs[loose].Paths = append(seqs[loose].Paths, arg)
	}
	return seqs, nil
}

func discoverInDirectory(dir string, opts DiscoverOptions) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !opts.Recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if IsSupported(path) && shouldInclude(path, opts) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(files, func(a, b string) int { return naturalCompare(a, b) })
	return files, nil
}

// shouldInclude applies exclude patterns first, then include patterns.
func shouldInclude(path string, opts DiscoverOptions) bool {
	if matchesAny(path, opts.Exclude) {
		return false
	}
	if len(opts.Include) == 0 {
		return true
	}
	return matchesAny(path, opts.Include)
}

func matchesAny(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// naturalCompare orders strings treating runs of digits as numbers.
func naturalCompare(a, b string) int {
	for a != "" && b != "" {
		ca, cb := a[0], b[0]
		if isDigit(ca) && isDigit(cb) {
			na, ra := splitDigits(a)
			nb, rb := splitDigits(b)
			if c := compareNumeric(na, nb); c != 0 {
				return c
			}
			a, b = ra, rb
			continue
		}
		if ca != cb {
			return int(ca) - int(cb)
		}
		a, b = a[1:], b[1:]
	}
	return len(a) - len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func splitDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// compareNumeric compares digit runs of any length without parsing them.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}
