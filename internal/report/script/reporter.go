// Package script writes remediation scripts to disk.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PiotrMackowski/CloudStrike/internal/remediation"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Reporter writes one shell file and one Terraform file per script.
type Reporter struct{}

// Write creates dir if needed and writes each script's CLI and Terraform
// text verbatim to NN_<title>.sh and NN_<title>.tf. It returns the paths
// written, in script order.
func (r *Reporter) Write(dir string, scripts []remediation.Script) ([]string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating script directory: %w", err)
	}

	var paths []string
	for i, s := range scripts {
		base := fmt.Sprintf("%02d_%s", i+1, Slug(s.Title))

		sh := filepath.Join(dir, base+".sh")
		if err := os.WriteFile(sh, []byte(s.CLIScript), 0o700); err != nil {
			return paths, fmt.Errorf("writing %s: %w", sh, err)
		}
		paths = append(paths, sh)

		tf := filepath.Join(dir, base+".tf")
		if err := os.WriteFile(tf, []byte(s.IaCScript), 0o600); err != nil {
			return paths, fmt.Errorf("writing %s: %w", tf, err)
		}
		paths = append(paths, tf)
	}
	return paths, nil
}

// Slug turns a title into a lower-case file name component.
func Slug(title string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "_"), "_")
	if s == "" {
		return "script"
	}
	return s
}
