package language

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/runbox-dev/runbox/config"
)

// ErrUnsupported is returned when a language identifier is not registered.
var ErrUnsupported = errors.New("unsupported language")

// Class determines the default timeout applied to a language.
type Class string

// Timeout classes
const (
	ClassInterpreted Class = "interpreted"
	ClassCompiled    Class = "compiled"
)

// Spec describes how a single language is executed. Specs are immutable
// once the registry is built.
type Spec struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Filename is the fixed name the source is written under. Languages
	// whose toolchain binds the filename to a declared type (Java) must
	// use this exact name regardless of what the submission declares.
	Filename string `yaml:"filename"`

	// Compile is the optional build step argv; Run is the run step argv.
	// Both reference only registry-fixed filenames, never submission
	// content.
	Compile []string `yaml:"compile,omitempty"`
	Run     []string `yaml:"run"`

	// ContainerCommand is the fixed command executed inside the
	// container image for this language.
	ContainerCommand []string `yaml:"container_command"`

	Class Class  `yaml:"class"`
	Image string `yaml:"image"`

	// CapAddressSpace records whether an RLIMIT_AS cap is safe for this
	// runtime. Managed runtimes that reserve large virtual address
	// ranges (V8, the JVM, Julia, the Go runtime) fail to start under
	// an address-space cap and are exempted; their heaps are bounded
	// through Env instead.
	CapAddressSpace bool `yaml:"cap_address_space"`

	// Env holds per-language runtime tuning attached to the command
	// plan (heap caps, build caches).
	Env map[string]string `yaml:"env,omitempty"`
}

// Compiled reports whether the spec has a build step.
func (s Spec) Compiled() bool {
	return len(s.Compile) > 0
}

// Registry maps language identifiers to their specs. Read-only after
// construction, so no synchronization is needed.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry builds the registry from the built-in table, applies
// per-language image overrides from the configuration, and merges the
// optional YAML overlay file.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	specs := make(map[string]Spec, len(builtins))
	for _, s := range builtins {
		specs[s.ID] = s
	}

	for id, image := range cfg.Languages.Images {
		s, ok := specs[id]
		if !ok {
			return nil, fmt.Errorf("image override for unknown language: %s", id)
		}
		s.Image = image
		specs[id] = s
	}

	if cfg.Languages.File != "" {
		overlay, err := loadOverlay(cfg.Languages.File)
		if err != nil {
			return nil, fmt.Errorf("loading language overlay: %w", err)
		}
		for _, s := range overlay {
			specs[s.ID] = s
		}
	}

	return &Registry{specs: specs}, nil
}

// Lookup returns the spec for a language identifier.
func (r *Registry) Lookup(id string) (Spec, error) {
	s, ok := r.specs[id]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnsupported, id)
	}
	return s, nil
}

// List returns all registered specs sorted by identifier.
func (r *Registry) List() []Spec {
	out := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns all registered language identifiers sorted.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.specs))
	for id := range r.specs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func loadOverlay(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var overlay struct {
		Languages []Spec `yaml:"languages"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	for _, s := range overlay.Languages {
		if err := validateSpec(s); err != nil {
			return nil, err
		}
	}
	return overlay.Languages, nil
}

func validateSpec(s Spec) error {
	if s.ID == "" {
		return errors.New("language spec missing id")
	}
	if s.Filename == "" {
		return fmt.Errorf("language %s: missing filename", s.ID)
	}
	if len(s.Run) == 0 {
		return fmt.Errorf("language %s: missing run command", s.ID)
	}
	if s.Class != ClassInterpreted && s.Class != ClassCompiled {
		return fmt.Errorf("language %s: invalid class %q", s.ID, s.Class)
	}
	return nil
}

// builtins is the default language table. The CapAddressSpace column is
// the documented exemption policy: only runtimes known to tolerate an
// address-space rlimit carry true.
var builtins = []Spec{
	{
		ID:               "python",
		Name:             "Python",
		Filename:         "main.py",
		Run:              []string{"python3", "main.py"},
		ContainerCommand: []string{"python3", "/work/main.py"},
		Class:            ClassInterpreted,
		Image:            "python:3.11-alpine",
		CapAddressSpace:  true,
	},
	{
		ID:               "javascript",
		Name:             "JavaScript",
		Filename:         "main.js",
		Run:              []string{"node", "main.js"},
		ContainerCommand: []string{"node", "/work/main.js"},
		Class:            ClassInterpreted,
		Image:            "node:20-alpine",
		CapAddressSpace:  false, // V8 reserves large virtual ranges
		Env:              map[string]string{"NODE_OPTIONS": "--max-old-space-size=256"},
	},
	{
		ID:               "r",
		Name:             "R",
		Filename:         "main.R",
		Run:              []string{"Rscript", "main.R"},
		ContainerCommand: []string{"Rscript", "/work/main.R"},
		Class:            ClassInterpreted,
		Image:            "r-base:4.3.1",
		CapAddressSpace:  true,
	},
	{
		ID:               "bash",
		Name:             "Bash",
		Filename:         "main.sh",
		Run:              []string{"bash", "main.sh"},
		ContainerCommand: []string{"sh", "/work/main.sh"},
		Class:            ClassInterpreted,
		Image:            "alpine:3.20",
		CapAddressSpace:  true,
	},
	{
		ID:               "julia",
		Name:             "Julia",
		Filename:         "main.jl",
		Run:              []string{"julia", "main.jl"},
		ContainerCommand: []string{"julia", "/work/main.jl"},
		Class:            ClassInterpreted,
		Image:            "julia:1.10-alpine",
		CapAddressSpace:  false, // Julia maps a large heap region at startup
	},
	{
		ID:               "go",
		Name:             "Go",
		Filename:         "main.go",
		Compile:          []string{"go", "build", "-o", "app", "main.go"},
		Run:              []string{"./app"},
		ContainerCommand: []string{"sh", "-c", "go build -o /scratch/app /work/main.go && /scratch/app"},
		Class:            ClassCompiled,
		Image:            "golang:1.23-alpine",
		CapAddressSpace:  false, // runtime arena reservation
		Env: map[string]string{
			"GOMEMLIMIT": "256MiB",
			"GOCACHE":    "/tmp/runbox-gocache",
			"GOFLAGS":    "-mod=mod",
		},
	},
	{
		ID:               "cpp",
		Name:             "C++",
		Filename:         "main.cpp",
		Compile:          []string{"g++", "-std=c++17", "-O2", "-o", "app", "main.cpp"},
		Run:              []string{"./app"},
		ContainerCommand: []string{"sh", "-c", "g++ -std=c++17 -O2 -o /scratch/app /work/main.cpp && /scratch/app"},
		Class:            ClassCompiled,
		Image:            "gcc:13",
		CapAddressSpace:  true,
	},
	{
		ID:               "java",
		Name:             "Java",
		Filename:         "Main.java", // javac binds the filename to the public class
		Compile:          []string{"javac", "Main.java"},
		Run:              []string{"java", "Main"},
		ContainerCommand: []string{"sh", "-c", "javac -d /scratch /work/Main.java && java -cp /scratch Main"},
		Class:            ClassCompiled,
		Image:            "eclipse-temurin:21",
		CapAddressSpace:  false, // the JVM needs large reserved address space
		Env:              map[string]string{"JAVA_TOOL_OPTIONS": "-XX:MaxRAMPercentage=75.0"},
	},
}
