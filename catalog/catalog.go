// Package catalog embeds the built-in attack path and remediation templates
// into the binary and loads template YAML from any fs.FS.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Embedded contains all built-in template YAML files.
//
//go:embed attacks/*.yaml remediation/*.yaml
var Embedded embed.FS

// Directories inside Embedded (and inside any override directory).
const (
	AttacksDir     = "attacks"
	RemediationDir = "remediation"
)

// Load decodes every .yaml/.yml file under dir into a T, in lexical path order.
func Load[T any](fsys fs.FS, dir string) ([]T, error) {
	var out []T

	err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(path.Ext(p))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("reading template file %s: %w", p, err)
		}

		var v T
		if err := yaml.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("parsing template file %s: %w", p, err)
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading templates from %s: %w", dir, err)
	}

	return out, nil
}
