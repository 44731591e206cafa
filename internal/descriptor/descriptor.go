// Package descriptor loads, validates and saves the easydeploy.yaml
// deployment descriptor.
package descriptor

import (
	"fmt"
	"strings"
)

// DefaultFile is the descriptor file name looked up in the working directory.
const DefaultFile = "easydeploy.yaml"

// MaxNameLength is the longest application name the control plane accepts.
const MaxNameLength = 63

// Supported platforms and runtimes.
var (
	Platforms = []string{"aws", "gcp", "azure"}
	Runtimes  = []string{"docker", "serverless", "static"}
)

// Descriptor is the validated, in-memory form of easydeploy.yaml.
type Descriptor struct {
	Name       string     `yaml:"app_name"`
	Platform   string     `yaml:"provider"`
	Region     string     `yaml:"region"`
	Runtime    string     `yaml:"runtime"`
	Build      *Build     `yaml:"build,omitempty"`
	Resources  Resources  `yaml:"resources"`
	Networking Networking `yaml:"networking"`
	Env        EnvVars    `yaml:"env,omitempty"`
}

// Build describes how the container image is built.
type Build struct {
	Dockerfile string  `yaml:"dockerfile,omitempty" json:"dockerfile,omitempty"`
	Context    string  `yaml:"context,omitempty" json:"context,omitempty"`
	Args       EnvVars `yaml:"args,omitempty" json:"args,omitempty"`
}

// Resources is the compute request for each instance.
type Resources struct {
	CPU          float64 `yaml:"cpu" json:"cpu"`
	Memory       int     `yaml:"memory" json:"memory"`
	MinInstances int     `yaml:"min_instances" json:"min_instances"`
	MaxInstances int     `yaml:"max_instances" json:"max_instances"`
}

// Networking describes how the application is exposed.
type Networking struct {
	Port         int    `yaml:"port" json:"port"`
	Public       bool   `yaml:"public" json:"public"`
	CustomDomain string `yaml:"custom_domain,omitempty" json:"custom_domain,omitempty"`
}

// Defaults used when the file leaves a field out.
const (
	DefaultRegion     = "us-west-2"
	DefaultCPU        = 1.0
	DefaultMemoryMB   = 1024
	DefaultInstances  = 1
	DefaultPort       = 8080
	DefaultDockerfile = "Dockerfile"
	DefaultContext    = "."
)

// Default returns the descriptor written by `easydeploy init`.
func Default(name string) *Descriptor {
	return &Descriptor{
		Name:     name,
		Platform: "aws",
		Region:   DefaultRegion,
		Runtime:  "docker",
		Build: &Build{
			Dockerfile: DefaultDockerfile,
			Context:    DefaultContext,
		},
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
}

// Validate checks every field and reports all problems in one ConfigError.
func (d *Descriptor) Validate() error {
	var problems []string

	name := strings.TrimSpace(d.Name)
	switch {
	case name == "":
		problems = append(problems, "app_name is required")
	case len(name) > MaxNameLength:
		problems = append(problems, fmt.Sprintf("app_name must be at most %d characters", MaxNameLength))
	}

	switch {
	case d.Platform == "":
		problems = append(problems, "provider is required")
	case !oneOf(d.Platform, Platforms):
		problems = append(problems, fmt.Sprintf("provider %q must be one of %s", d.Platform, strings.Join(Platforms, ", ")))
	}

	switch {
	case d.Runtime == "":
		problems = append(problems, "runtime is required")
	case !oneOf(d.Runtime, Runtimes):
		problems = append(problems, fmt.Sprintf("runtime %q must be one of %s", d.Runtime, strings.Join(Runtimes, ", ")))
	}

	if strings.TrimSpace(d.Region) == "" {
		problems = append(problems, "region must not be empty")
	}

	if d.Resources.CPU <= 0 {
		problems = append(problems, "resources.cpu must be positive")
	}
	if d.Resources.Memory <= 0 {
		problems = append(problems, "resources.memory must be positive")
	}
	if d.Resources.MinInstances < 0 {
		problems = append(problems, "resources.min_instances must not be negative")
	}
	if minMax := max(1, d.Resources.MinInstances); d.Resources.MaxInstances < minMax {
		problems = append(problems, fmt.Sprintf("resources.max_instances must be at least %d", minMax))
	}

	if d.Networking.Port < 1 || d.Networking.Port > 65535 {
		problems = append(problems, fmt.Sprintf("networking.port %d is outside 1-65535", d.Networking.Port))
	}

	problems = append(problems, d.Env.problems("env")...)
	if d.Build != nil {
		problems = append(problems, d.Build.Args.problems("build.args")...)
	}

	if len(problems) > 0 {
		return &ConfigError{Kind: KindInvalid, Problems: problems}
	}
	return nil
}

// ImageName returns the local image repository name for the application.
func (d *Descriptor) ImageName() string {
	return strings.ToLower(strings.TrimSpace(d.Name))
}

// DeployRequest is the body of POST /deployments.
type DeployRequest struct {
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	Platform   string      `json:"platform"`
	Region     string      `json:"region"`
	Resources  Resources   `json:"resources"`
	EnvVars    EnvVars     `json:"env_vars"`
	Build      *Build      `json:"build,omitempty"`
	Networking *Networking `json:"networking,omitempty"`
	Image      string      `json:"image,omitempty"`
}

// DeployRequest builds the deploy payload. image is the locally built image
// reference, if any.
func (d *Descriptor) DeployRequest(image string) DeployRequest {
	networking := d.Networking
	return DeployRequest{
		Name:       d.Name,
		Type:       d.Runtime,
		Platform:   d.Platform,
		Region:     d.Region,
		Resources:  d.Resources,
		EnvVars:    d.Env,
		Build:      d.Build,
		Networking: &networking,
		Image:      image,
	}
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
