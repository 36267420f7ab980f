package automation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTask(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "task.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTaskAppliesOverrides(t *testing.T) {
	path := writeTask(t, `
profile: shop-1
debugPort: 9222
variables:
  term: shoes
  page: 2
steps:
  - action: navigate
    url: https://example.com/search?q={{term}}&p={{page}}
  - action: wait
    waitMs: 10
`)
	opts := &runOptions{taskPath: path, vars: []string{"term=boots"}, wsEndpoint: "ws://127.0.0.1:9333/devtools/browser/x"}
	req, err := opts.loadTask()
	if err != nil {
		t.Fatalf("loadTask: %v", err)
	}
	if req.ProfileID != "shop-1" || req.DebugPort != 9222 || req.WSEndpoint != opts.wsEndpoint {
		t.Fatalf("req = %+v", req)
	}
	if len(req.Steps) != 2 {
		t.Fatalf("steps = %d", len(req.Steps))
	}
	nav := req.Steps[0].Action.substitute(req.Variables).(Navigate)
	if nav.URL != "https://example.com/search?q=boots&p=2" {
		t.Fatalf("url = %q", nav.URL)
	}
}

func TestLoadTaskErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		opts runOptions
		want string
	}{
		{name: "no task", want: "--task is required"},
		{name: "unknown key", body: "profile: p\ndebugPort: 1\nstepz: []\n", want: "stepz"},
		{name: "bad step", body: "debugPort: 1\nsteps:\n  - action: fly\n", want: `unknown action "fly"`},
		{name: "no browser", body: "steps:\n  - action: wait\n", want: "debug port or ws endpoint"},
		{name: "bad var", body: "debugPort: 1\nsteps:\n  - action: wait\n", opts: runOptions{vars: []string{"oops"}}, want: "expected key=value"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := tc.opts
			if tc.body != "" {
				opts.taskPath = writeTask(t, tc.body)
			}
			_, err := opts.loadTask()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}
}
