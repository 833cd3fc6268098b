package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var profileExtensions = []string{".yaml", ".yml"}

// SelectorList accepts either a single selector or a list in YAML.
type SelectorList []string

func (s *SelectorList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if v := strings.TrimSpace(value.Value); v != "" {
			*s = SelectorList{v}
		}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("line %d: selectors must be a string or a list", value.Line)
	}
}

type fileProfile struct {
	Name       string                  `yaml:"name"`
	Domains    []string                `yaml:"domains"`
	Load       LoadPolicy              `yaml:"load"`
	Selectors  map[string]SelectorList `yaml:"selectors"`
	Locale     string                  `yaml:"locale"`
	TimezoneID string                  `yaml:"timezone"`
}

// DirLoader reads profiles from <dir>/<name>.yaml on every call.
type DirLoader struct {
	dir string
}

func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{dir: dir}
}

func (l *DirLoader) Load(name string) (*Profile, error) {
	if l.dir == "" || name == "" || strings.ContainsAny(name, `/\`) {
		return nil, ErrNotFound
	}

	for _, ext := range profileExtensions {
		path := filepath.Join(l.dir, name+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
		}
		p, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
		}
		if p.Name == "" {
			p.Name = name
		}
		return p, nil
	}

	return nil, ErrNotFound
}

func (l *DirLoader) Names() ([]string, error) {
	if l.dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile directory: %w", err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		for _, want := range profileExtensions {
			if ext == want {
				n := strings.TrimSuffix(e.Name(), ext)
				if !seen[n] {
					seen[n] = true
					names = append(names, n)
				}
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Parse decodes one YAML profile document.
func Parse(data []byte) (*Profile, error) {
	var fp fileProfile
	if err := yaml.Unmarshal(data, &fp); err != nil {
		return nil, err
	}

	p := &Profile{
		Name:       fp.Name,
		Domains:    fp.Domains,
		Load:       fp.Load,
		Locale:     fp.Locale,
		TimezoneID: fp.TimezoneID,
	}
	if len(fp.Selectors) > 0 {
		p.Selectors = make(map[string][]string, len(fp.Selectors))
		for field, list := range fp.Selectors {
			p.Selectors[field] = []string(list)
		}
	}
	return p, nil
}
