package descriptor

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// document mirrors the file layout. Pointers distinguish "absent" from zero
// so defaults only fill what the user left out.
type document struct {
	AppName    string         `yaml:"app_name"`
	Name       string         `yaml:"name"`
	Provider   string         `yaml:"provider"`
	Platform   string         `yaml:"platform"`
	Region     string         `yaml:"region"`
	Runtime    string         `yaml:"runtime"`
	Build      *Build         `yaml:"build"`
	Resources  *resourcesDoc  `yaml:"resources"`
	Networking *networkingDoc `yaml:"networking"`
	Env        EnvVars        `yaml:"env"`
}

type resourcesDoc struct {
	CPU          *float64 `yaml:"cpu"`
	Memory       *int     `yaml:"memory"`
	MinInstances *int     `yaml:"min_instances"`
	MaxInstances *int     `yaml:"max_instances"`
}

type networkingDoc struct {
	Port         *int   `yaml:"port"`
	Public       *bool  `yaml:"public"`
	CustomDomain string `yaml:"custom_domain"`
}

// Load reads, defaults and validates the descriptor at path. It never
// modifies the file.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{Kind: KindNotFound, Path: path, Err: err}
		}
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	d, err := Parse(data)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
		}
		return nil, err
	}
	return d, nil
}

// Parse decodes descriptor YAML, applies defaults and validates.
func Parse(data []byte) (*Descriptor, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Kind: KindMalformed, Err: err}
	}

	d := doc.descriptor()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (doc *document) descriptor() *Descriptor {
	d := &Descriptor{
		Name:     strings.TrimSpace(firstNonEmpty(doc.AppName, doc.Name)),
		Platform: strings.ToLower(strings.TrimSpace(firstNonEmpty(doc.Provider, doc.Platform))),
		Region:   strings.TrimSpace(doc.Region),
		Runtime:  strings.ToLower(strings.TrimSpace(doc.Runtime)),
		Build:    doc.Build,
		Env:      doc.Env,
		Resources: Resources{
			CPU:          DefaultCPU,
			Memory:       DefaultMemoryMB,
			MinInstances: DefaultInstances,
			MaxInstances: DefaultInstances,
		},
		Networking: Networking{
			Port:   DefaultPort,
			Public: true,
		},
	}

	if d.Region == "" {
		d.Region = DefaultRegion
	}

	if r := doc.Resources; r != nil {
		if r.CPU != nil {
			d.Resources.CPU = *r.CPU
		}
		if r.Memory != nil {
			d.Resources.Memory = *r.Memory
		}
		if r.MinInstances != nil {
			d.Resources.MinInstances = *r.MinInstances
		}
		if r.MaxInstances != nil {
			d.Resources.MaxInstances = *r.MaxInstances
		} else if d.Resources.MinInstances > d.Resources.MaxInstances {
			d.Resources.MaxInstances = d.Resources.MinInstances
		}
	}

	if n := doc.Networking; n != nil {
		if n.Port != nil {
			d.Networking.Port = *n.Port
		}
		if n.Public != nil {
			d.Networking.Public = *n.Public
		}
		d.Networking.CustomDomain = strings.TrimSpace(n.CustomDomain)
	}

	if d.Runtime == "docker" && d.Build == nil {
		d.Build = &Build{}
	}
	if d.Build != nil {
		if d.Build.Dockerfile == "" {
			d.Build.Dockerfile = DefaultDockerfile
		}
		if d.Build.Context == "" {
			d.Build.Context = DefaultContext
		}
	}

	return d
}

// Marshal encodes d in the canonical file layout.
func Marshal(d *Descriptor) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Save validates d and writes it to path with a stable key order. The file
// is replaced atomically.
func Save(path string, d *Descriptor) error {
	if err := d.Validate(); err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
		}
		return err
	}

	data, err := Marshal(d)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".easydeploy-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
