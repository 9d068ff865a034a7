package sandbox

import (
	"github.com/runbox-dev/runbox/language"
)

// Plan is a synthesized command: a run step, an optional compile step
// executed first, and environment overrides from the language spec.
// All paths appear as discrete argv elements; nothing is interpolated
// into a shell string.
type Plan struct {
	Compile []string
	Run     []string
	Env     map[string]string
	Workdir string
	Spec    language.Spec
}

// Synthesize builds the command plan for a language spec and an
// acquired workspace. For compiled languages the run step executes
// only if the compile step exits zero.
func Synthesize(spec language.Spec, workdir string) Plan {
	p := Plan{
		Run:     append([]string(nil), spec.Run...),
		Env:     spec.Env,
		Workdir: workdir,
		Spec:    spec,
	}
	if spec.Compiled() {
		p.Compile = append([]string(nil), spec.Compile...)
	}
	return p
}
