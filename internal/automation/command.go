package automation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/drksbr/browserrelay/internal/cdp"
	"github.com/drksbr/browserrelay/internal/config"
	"github.com/drksbr/browserrelay/internal/humanize"
	"github.com/drksbr/browserrelay/internal/metrics"
	"github.com/drksbr/browserrelay/internal/runtime"
	"github.com/drksbr/browserrelay/internal/status"
	"github.com/drksbr/browserrelay/internal/util"
)

// taskFile is the YAML document accepted by the run command.
type taskFile struct {
	Profile    string         `yaml:"profile"`
	DebugPort  int            `yaml:"debugPort"`
	WSEndpoint string         `yaml:"wsEndpoint"`
	Variables  map[string]any `yaml:"variables"`
	Steps      []StepSpec     `yaml:"steps"`
}

type runOptions struct {
	taskPath        string
	profile         string
	debugPort       int
	wsEndpoint      string
	vars            []string
	idMode          string
	settle          time.Duration
	resolveAttempts uint
	resolveInterval time.Duration
	statusListen    string
}

// loadTask reads the task file and applies command line overrides.
func (o *runOptions) loadTask() (TaskRequest, error) {
	if o.taskPath == "" {
		return TaskRequest{}, errors.New("--task is required")
	}
	var tf taskFile
	if err := config.LoadYAML(o.taskPath, &tf); err != nil {
		return TaskRequest{}, err
	}
	steps, err := CompileSteps(tf.Steps)
	if err != nil {
		return TaskRequest{}, fmt.Errorf("task %s: %w", o.taskPath, err)
	}

	vars := Variables{}
	for k, v := range tf.Variables {
		vars[k] = v
	}
	for _, pair := range o.vars {
		k, v, err := ParseVariable(pair)
		if err != nil {
			return TaskRequest{}, err
		}
		vars[k] = v
	}

	req := TaskRequest{
		ProfileID:  tf.Profile,
		Steps:      steps,
		Variables:  vars,
		DebugPort:  tf.DebugPort,
		WSEndpoint: tf.WSEndpoint,
	}
	if o.profile != "" {
		req.ProfileID = o.profile
	}
	if o.debugPort != 0 {
		req.DebugPort = o.debugPort
	}
	if o.wsEndpoint != "" {
		req.WSEndpoint = o.wsEndpoint
	}
	if req.ProfileID == "" {
		req.ProfileID = "default"
	}
	if req.DebugPort == 0 && req.WSEndpoint == "" {
		return TaskRequest{}, errors.New("a debug port or ws endpoint is required")
	}
	return req, nil
}

func NewCommand(globals *runtime.Options) *cobra.Command {
	opts := &runOptions{
		debugPort:       config.GetIntEnv("DEBUG_PORT", 0),
		wsEndpoint:      config.GetStringEnv("WS_ENDPOINT", ""),
		idMode:          config.GetStringEnv("TASK_ID_MODE", "uuid"),
		settle:          config.GetDurationEnv("NAVIGATION_SETTLE", defaultSettle),
		resolveAttempts: 15,
		resolveInterval: config.GetDurationEnv("RESOLVE_INTERVAL", time.Second),
		statusListen:    config.GetStringEnv("STATUS_LISTEN", ""),
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an automation task file against a browser over CDP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.WithSignalContext(cmd.Context(), globals.ComponentLogger("automation"))
			defer cancel()
			return runTask(ctx, cmd.OutOrStdout(), globals, opts)
		},
	}

	cmd.Flags().StringVar(&opts.taskPath, "task", "", "YAML task file")
	cmd.Flags().StringVar(&opts.profile, "profile", "", "profile id (overrides the task file)")
	cmd.Flags().IntVar(&opts.debugPort, "debug-port", opts.debugPort, "browser remote debugging port")
	cmd.Flags().StringVar(&opts.wsEndpoint, "ws-endpoint", opts.wsEndpoint, "browser or page DevTools WebSocket URL")
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil, "template variable key=value (repeatable)")
	cmd.Flags().StringVar(&opts.idMode, "task-id-mode", opts.idMode, "task id generator (uuid or cuid)")
	cmd.Flags().DurationVar(&opts.settle, "navigation-settle", opts.settle, "pause after each navigation")
	cmd.Flags().UintVar(&opts.resolveAttempts, "resolve-attempts", opts.resolveAttempts, "page target lookups before giving up")
	cmd.Flags().DurationVar(&opts.resolveInterval, "resolve-interval", opts.resolveInterval, "delay between page target lookups")
	cmd.Flags().StringVar(&opts.statusListen, "status-listen", opts.statusListen, "optional address for /metrics and /status.json")

	return cmd
}

func runTask(ctx context.Context, out io.Writer, globals *runtime.Options, opts *runOptions) error {
	logger := globals.ComponentLogger("automation")
	req, err := opts.loadTask()
	if err != nil {
		return err
	}

	shutdown, err := globals.SetupTracing(ctx)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client := cdp.NewClient(cdp.ClientOptions{Metrics: m, Logger: globals.Logger()})
	defer client.Close()

	var outMu sync.Mutex
	store := NewStore(func(taskID string, e LogEntry) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, "%s %s [%s] step=%d %s\n", e.Timestamp.Format(time.RFC3339), taskID, e.Level, e.Step, e.Message)
	})

	engine, err := New(Options{
		Browser: client,
		Resolver: cdp.NewTargetResolver(cdp.ResolverOptions{
			Attempts: opts.resolveAttempts,
			Interval: opts.resolveInterval,
			Logger:   globals.Logger(),
		}),
		Store:            store,
		Humanizer:        humanize.NewRandom(),
		IDMode:           opts.idMode,
		NavigationSettle: opts.settle,
		Metrics:          m,
		Logger:           globals.Logger(),
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	if opts.statusListen != "" {
		srv := status.New(status.Options{
			Addr:     opts.statusListen,
			Gatherer: reg,
			Logger:   globals.Logger(),
			Sections: map[string]status.Provider{
				"tasks": func() any { return engine.List("") },
			},
		})
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
	}

	id, err := engine.Spawn(req)
	if err != nil {
		return err
	}

	task, err := engine.Wait(ctx, id)
	if errors.Is(err, context.Canceled) {
		if cerr := engine.Cancel(id); cerr != nil && !errors.Is(cerr, ErrTaskNotRunning) {
			return cerr
		}
		logger.Info("waiting for the current step to finish", "task", id)
		task, err = engine.Wait(context.Background(), id)
	}
	if err != nil {
		return err
	}

	if task.Status != StatusCompleted {
		if task.Error != "" {
			return fmt.Errorf("task %s %s: %s", task.ID, task.Status, task.Error)
		}
		return fmt.Errorf("task %s %s at step %d/%d", task.ID, task.Status, task.CurrentStep, task.TotalSteps)
	}
	return nil
}
