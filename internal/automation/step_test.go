package automation

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestCompile(t *testing.T) {
	cases := []struct {
		name    string
		spec    StepSpec
		want    Action
		wantErr string
	}{
		{
			name: "navigate defaults timeout",
			spec: StepSpec{Action: "navigate", URL: "https://a"},
			want: Navigate{URL: "https://a", Timeout: 15 * time.Second},
		},
		{
			name: "navigate with wait",
			spec: StepSpec{Action: "Navigate", URL: "https://a", WaitForSelector: "#x", Timeout: ptr[int64](2500)},
			want: Navigate{URL: "https://a", WaitForSelector: "#x", Timeout: 2500 * time.Millisecond},
		},
		{name: "navigate without url", spec: StepSpec{Action: "navigate"}, wantErr: "requires url"},
		{
			name: "click by selector",
			spec: StepSpec{Action: "click", Selector: "#a", FallbackSelectors: []string{"#b"}},
			want: Click{Selector: "#a", FallbackSelectors: []string{"#b"}},
		},
		{
			name: "click by script",
			spec: StepSpec{Action: "click", JSExpression: "go()"},
			want: Click{JSExpression: "go()"},
		},
		{name: "click without target", spec: StepSpec{Action: "click"}, wantErr: "requires selector or jsExpression"},
		{
			name: "type empty value",
			spec: StepSpec{Action: "type", Selector: "#q", Value: ptr("")},
			want: Type{Selector: "#q"},
		},
		{name: "type without value", spec: StepSpec{Action: "type", Selector: "#q"}, wantErr: "requires value"},
		{name: "type without selector", spec: StepSpec{Action: "type", Value: ptr("x")}, wantErr: "requires selector"},
		{name: "scroll default", spec: StepSpec{Action: "scroll"}, want: Scroll{Iterations: 3}},
		{name: "scroll too many", spec: StepSpec{Action: "scroll", Iterations: ptr(1000)}, wantErr: "iterations"},
		{name: "wait default", spec: StepSpec{Action: "wait"}, want: Wait{Duration: 3 * time.Second}},
		{name: "wait explicit", spec: StepSpec{Action: "wait", WaitMs: ptr[int64](250)}, want: Wait{Duration: 250 * time.Millisecond}},
		{name: "wait negative", spec: StepSpec{Action: "wait", WaitMs: ptr[int64](-1)}, wantErr: "invalid waitMs"},
		{name: "evaluate", spec: StepSpec{Action: "evaluate", JSExpression: "1+1"}, want: Evaluate{JSExpression: "1+1"}},
		{name: "evaluate blank", spec: StepSpec{Action: "evaluate", JSExpression: "  "}, wantErr: "requires jsExpression"},
		{name: "unknown", spec: StepSpec{Action: "hover"}, wantErr: `unknown action "hover"`},
		{name: "missing", spec: StepSpec{}, wantErr: "missing action"},
		{name: "bad delay", spec: StepSpec{Action: "wait", HumanDelay: []int64{1}}, wantErr: "humanDelay"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			step, err := tc.spec.Compile()
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			if got := step.Action; !equalAction(got, tc.want) {
				t.Fatalf("action = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func equalAction(a, b Action) bool {
	switch x := a.(type) {
	case Click:
		y, ok := b.(Click)
		return ok && x.Selector == y.Selector && x.JSExpression == y.JSExpression && strings.Join(x.FallbackSelectors, ",") == strings.Join(y.FallbackSelectors, ",")
	case Type:
		y, ok := b.(Type)
		return ok && x.Selector == y.Selector && x.Value == y.Value && strings.Join(x.FallbackSelectors, ",") == strings.Join(y.FallbackSelectors, ",")
	default:
		return a == b
	}
}

func TestHumanDelayNormalized(t *testing.T) {
	step, err := StepSpec{Action: "wait", HumanDelay: []int64{900, 300}}.Compile()
	if err != nil {
		t.Fatal(err)
	}
	if step.HumanDelay.Min != 300*time.Millisecond || step.HumanDelay.Max != 900*time.Millisecond {
		t.Fatalf("delay = %+v", step.HumanDelay)
	}
}

func TestCompileStepsNamesFailingStep(t *testing.T) {
	_, err := CompileSteps([]StepSpec{{Action: "wait"}, {Action: "fly"}})
	if err == nil || !strings.HasPrefix(err.Error(), "step 2: ") {
		t.Fatalf("err = %v", err)
	}
	if _, err := CompileSteps(nil); err == nil {
		t.Fatal("expected error for no steps")
	}
}

func TestParseStepsJSON(t *testing.T) {
	steps, err := ParseSteps([]byte(`[
		{"action":"navigate","url":"https://a","waitForSelector":"#r","timeout":1000},
		{"action":"type","selector":"#q","fallbackSelectors":["input[name=q]"],"value":"{{term}}","humanDelay":[100,200]},
		{"action":"click","jsExpression":"document.forms[0].submit()","description":"submit form"}
	]`))
	if err != nil {
		t.Fatalf("ParseSteps: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("len = %d", len(steps))
	}
	typ, ok := steps[1].Action.(Type)
	if !ok || typ.FallbackSelectors[0] != "input[name=q]" || typ.Value != "{{term}}" {
		t.Fatalf("type step = %#v", steps[1].Action)
	}
	if steps[1].Label() != "type" || steps[2].Label() != "submit form" {
		t.Fatalf("labels = %q, %q", steps[1].Label(), steps[2].Label())
	}
	if _, err := ParseSteps([]byte(`{"action":"wait"}`)); err == nil {
		t.Fatal("expected decode error for an object")
	}
}

func TestStepSpecYAML(t *testing.T) {
	doc := `
- action: scroll
  iterations: 5
- action: wait
  waitMs: 100
`
	var specs []StepSpec
	if err := yaml.Unmarshal([]byte(doc), &specs); err != nil {
		t.Fatal(err)
	}
	steps, err := CompileSteps(specs)
	if err != nil {
		t.Fatal(err)
	}
	if steps[0].Action != (Scroll{Iterations: 5}) || steps[1].Action != (Wait{Duration: 100 * time.Millisecond}) {
		t.Fatalf("steps = %#v", steps)
	}
}

func TestSubstituteLeavesOriginal(t *testing.T) {
	orig := Click{Selector: "#{{id}}", FallbackSelectors: []string{".{{cls}}"}}
	got := orig.substitute(Variables{"id": "main", "cls": "btn"}).(Click)
	if got.Selector != "#main" || got.FallbackSelectors[0] != ".btn" {
		t.Fatalf("substituted = %#v", got)
	}
	if orig.Selector != "#{{id}}" || orig.FallbackSelectors[0] != ".{{cls}}" {
		t.Fatalf("original mutated: %#v", orig)
	}
}
