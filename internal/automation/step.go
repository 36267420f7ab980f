package automation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultWait         = 3000 * time.Millisecond
	defaultScrollPasses = 3
	defaultSelectorWait = 15 * time.Second
	maxScrollIterations = 100
	maxHumanDelayMs     = 10 * 60 * 1000
)

// ActionKind names a step action on the wire.
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionScroll   ActionKind = "scroll"
	ActionWait     ActionKind = "wait"
	ActionEvaluate ActionKind = "evaluate"
)

// Action is implemented by Navigate, Click, Type, Scroll, Wait and Evaluate.
type Action interface {
	Kind() ActionKind
	substitute(vars Variables) Action
}

type Navigate struct {
	URL             string
	WaitForSelector string
	Timeout         time.Duration
}

// Click uses JSExpression when set, otherwise the first selector that matches.
type Click struct {
	Selector          string
	FallbackSelectors []string
	JSExpression      string
}

type Type struct {
	Selector          string
	FallbackSelectors []string
	Value             string
}

// Scroll uses JSExpression when set, otherwise Iterations humanized passes.
type Scroll struct {
	Iterations   int
	JSExpression string
}

type Wait struct {
	Duration time.Duration
}

type Evaluate struct {
	JSExpression string
}

func (Navigate) Kind() ActionKind { return ActionNavigate }
func (Click) Kind() ActionKind    { return ActionClick }
func (Type) Kind() ActionKind     { return ActionType }
func (Scroll) Kind() ActionKind   { return ActionScroll }
func (Wait) Kind() ActionKind     { return ActionWait }
func (Evaluate) Kind() ActionKind { return ActionEvaluate }

func (a Navigate) substitute(v Variables) Action {
	a.URL = v.Apply(a.URL)
	a.WaitForSelector = v.Apply(a.WaitForSelector)
	return a
}

func (a Click) substitute(v Variables) Action {
	a.Selector = v.Apply(a.Selector)
	a.FallbackSelectors = v.ApplyAll(a.FallbackSelectors)
	a.JSExpression = v.Apply(a.JSExpression)
	return a
}

func (a Type) substitute(v Variables) Action {
	a.Selector = v.Apply(a.Selector)
	a.FallbackSelectors = v.ApplyAll(a.FallbackSelectors)
	a.Value = v.Apply(a.Value)
	return a
}

func (a Scroll) substitute(v Variables) Action {
	a.JSExpression = v.Apply(a.JSExpression)
	return a
}

func (a Wait) substitute(Variables) Action { return a }

func (a Evaluate) substitute(v Variables) Action {
	a.JSExpression = v.Apply(a.JSExpression)
	return a
}

// DelayRange bounds the pause taken after a step.
type DelayRange struct {
	Min, Max time.Duration
}

type Step struct {
	Description string
	HumanDelay  *DelayRange
	Action      Action
}

// Label is what the task log prints for the step.
func (s Step) Label() string {
	if d := strings.TrimSpace(s.Description); d != "" {
		return d
	}
	return string(s.Action.Kind())
}

// StepSpec is the flat JSON/YAML form of a step.
type StepSpec struct {
	Action            string   `json:"action" yaml:"action"`
	Description       string   `json:"description,omitempty" yaml:"description,omitempty"`
	URL               string   `json:"url,omitempty" yaml:"url,omitempty"`
	Selector          string   `json:"selector,omitempty" yaml:"selector,omitempty"`
	FallbackSelectors []string `json:"fallbackSelectors,omitempty" yaml:"fallbackSelectors,omitempty"`
	Value             *string  `json:"value,omitempty" yaml:"value,omitempty"`
	JSExpression      string   `json:"jsExpression,omitempty" yaml:"jsExpression,omitempty"`
	WaitMs            *int64   `json:"waitMs,omitempty" yaml:"waitMs,omitempty"`
	Iterations        *int     `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	HumanDelay        []int64  `json:"humanDelay,omitempty" yaml:"humanDelay,omitempty"`
	WaitForSelector   string   `json:"waitForSelector,omitempty" yaml:"waitForSelector,omitempty"`
	Timeout           *int64   `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

var errNoSteps = errors.New("task has no steps")

// Compile validates the spec and builds the matching Action.
func (s StepSpec) Compile() (Step, error) {
	step := Step{Description: s.Description}
	if s.HumanDelay != nil {
		d, err := compileDelay(s.HumanDelay)
		if err != nil {
			return Step{}, err
		}
		step.HumanDelay = d
	}

	switch ActionKind(strings.ToLower(strings.TrimSpace(s.Action))) {
	case ActionNavigate:
		if strings.TrimSpace(s.URL) == "" {
			return Step{}, errors.New("navigate requires url")
		}
		timeout := defaultSelectorWait
		if s.Timeout != nil {
			if *s.Timeout <= 0 {
				return Step{}, fmt.Errorf("invalid timeout %d", *s.Timeout)
			}
			timeout = time.Duration(*s.Timeout) * time.Millisecond
		}
		step.Action = Navigate{URL: s.URL, WaitForSelector: s.WaitForSelector, Timeout: timeout}
	case ActionClick:
		if s.Selector == "" && s.JSExpression == "" {
			return Step{}, errors.New("click requires selector or jsExpression")
		}
		step.Action = Click{Selector: s.Selector, FallbackSelectors: s.FallbackSelectors, JSExpression: s.JSExpression}
	case ActionType:
		if s.Selector == "" {
			return Step{}, errors.New("type requires selector")
		}
		if s.Value == nil {
			return Step{}, errors.New("type requires value")
		}
		step.Action = Type{Selector: s.Selector, FallbackSelectors: s.FallbackSelectors, Value: *s.Value}
	case ActionScroll:
		n := defaultScrollPasses
		if s.Iterations != nil {
			n = *s.Iterations
		}
		if n < 0 || n > maxScrollIterations {
			return Step{}, fmt.Errorf("iterations must be between 0 and %d", maxScrollIterations)
		}
		step.Action = Scroll{Iterations: n, JSExpression: s.JSExpression}
	case ActionWait:
		d := defaultWait
		if s.WaitMs != nil {
			if *s.WaitMs < 0 {
				return Step{}, fmt.Errorf("invalid waitMs %d", *s.WaitMs)
			}
			d = time.Duration(*s.WaitMs) * time.Millisecond
		}
		step.Action = Wait{Duration: d}
	case ActionEvaluate:
		if strings.TrimSpace(s.JSExpression) == "" {
			return Step{}, errors.New("evaluate requires jsExpression")
		}
		step.Action = Evaluate{JSExpression: s.JSExpression}
	case "":
		return Step{}, errors.New("missing action")
	default:
		return Step{}, fmt.Errorf("unknown action %q", s.Action)
	}
	return step, nil
}

func compileDelay(bounds []int64) (*DelayRange, error) {
	if len(bounds) != 2 {
		return nil, fmt.Errorf("humanDelay needs [min, max], got %d values", len(bounds))
	}
	lo, hi := bounds[0], bounds[1]
	if lo < 0 || hi < 0 || lo > maxHumanDelayMs || hi > maxHumanDelayMs {
		return nil, fmt.Errorf("humanDelay out of range: %v", bounds)
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return &DelayRange{
		Min: time.Duration(lo) * time.Millisecond,
		Max: time.Duration(hi) * time.Millisecond,
	}, nil
}

// CompileSteps compiles every spec, naming the 1-based step in errors.
func CompileSteps(specs []StepSpec) ([]Step, error) {
	if len(specs) == 0 {
		return nil, errNoSteps
	}
	steps := make([]Step, 0, len(specs))
	for i, spec := range specs {
		step, err := spec.Compile()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// ParseSteps decodes a JSON array of steps and compiles it.
func ParseSteps(data []byte) ([]Step, error) {
	var specs []StepSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	return CompileSteps(specs)
}
