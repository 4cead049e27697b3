// Package prompts implements the prompt registry (spec.md §4.2): a
// name→string mapping of system instructions, kept out of code and
// consulted by name per mode, embedded at build time so the service
// ships with no runtime file dependency. Grounded on the teacher's
// llmagent.Config pattern of passing a plain system-instruction string
// into the agent, but sourced here from YAML rather than inline Go.
package prompts

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var registryYAML []byte

// Registry is a name→instruction mapping loaded once at package init.
type Registry struct {
	entries map[string]string
}

var defaultRegistry *Registry

func init() {
	r, err := loadRegistry(registryYAML)
	if err != nil {
		panic(fmt.Sprintf("prompts: failed to load embedded registry: %v", err))
	}
	defaultRegistry = r
}

func loadRegistry(data []byte) (*Registry, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return &Registry{entries: raw}, nil
}

// Default returns the package-wide registry loaded from registry.yaml.
func Default() *Registry { return defaultRegistry }

// Get returns the system instruction registered under name.
func (r *Registry) Get(name string) (string, bool) {
	s, ok := r.entries[name]
	return s, ok
}

// MustGet returns the system instruction registered under name, panicking
// if absent. Called by topology.Build, which pkg/orchestrator runs at the
// start of every turn, so a missing entry panics during that turn.
func (r *Registry) MustGet(name string) string {
	s, ok := r.entries[name]
	if !ok {
		panic(fmt.Sprintf("prompts: no entry registered for %q", name))
	}
	return s
}
