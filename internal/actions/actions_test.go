package actions

import (
	"testing"

	"github.com/walther/conveyor/internal/runtimes"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry(runtimes.NewFinder(nil))

	for _, name := range []string{"checkout", "setup-python"} {
		action, ok := r.Get(name)
		if !ok {
			t.Errorf("Get(%q) not found", name)
			continue
		}
		if action.Name() != name {
			t.Errorf("action registered under %q reports name %q", name, action.Name())
		}
		if !r.Known(name) {
			t.Errorf("Known(%q) = false", name)
		}
	}

	if r.Known("docker-build") {
		t.Error("Known(docker-build) = true, want false")
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "checkout" || names[1] != "setup-python" {
		t.Errorf("Names() = %v", names)
	}
}
