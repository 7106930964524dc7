package voice

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loqalabs/phonex/internal/phoneme"
)

// File is the on-disk voice definition. Phonemes it omits inherit the
// built-in table.
type File struct {
	Name      string                 `yaml:"name"`
	BasePitch float64                `yaml:"base_pitch"`
	Phonemes  map[string]PhonemeData `yaml:"phonemes"`
}

// LoadFile reads one voice definition.
func LoadFile(path string) (*Voice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse voice %s: %w", path, err)
	}
	return f.Voice()
}

// Voice validates f and overlays it onto the built-in table.
func (f File) Voice() (*Voice, error) {
	if strings.TrimSpace(f.Name) == "" {
		return nil, fmt.Errorf("voice name is required")
	}
	if f.BasePitch < 0 {
		return nil, fmt.Errorf("voice %s: base_pitch must be >= 0", f.Name)
	}
	table := defaultTable()
	for name, data := range f.Phonemes {
		ph, ok := phoneme.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("voice %s: unknown phoneme %q", f.Name, name)
		}
		if data.Duration < phoneme.MinDuration || data.Duration > phoneme.MaxDuration {
			return nil, fmt.Errorf("voice %s: %s duration %.3f out of range", f.Name, ph, data.Duration)
		}
		table[ph] = data
	}
	pitch := f.BasePitch
	if pitch == 0 {
		pitch = DefaultBasePitch
	}
	return New(f.Name, pitch, table), nil
}

// LoadDir registers every *.yaml / *.yml voice found in dir. A missing
// directory is not an error.
func (r *Registry) LoadDir(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read voice dir: %w", err)
	}
	var loaded []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		v, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return loaded, err
		}
		r.Register(v)
		loaded = append(loaded, v.Name)
	}
	return loaded, nil
}
