package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/drksbr/browserrelay/internal/config"
	"github.com/drksbr/browserrelay/internal/metrics"
	"github.com/drksbr/browserrelay/internal/runtime"
	"github.com/drksbr/browserrelay/internal/status"
	"github.com/drksbr/browserrelay/internal/util"
)

type relayOptions struct {
	kind         string
	upstream     string
	username     string
	password     string
	session      string
	configPath   string
	listenHost   string
	statusListen string
	probe        string
	dialTimeout  time.Duration
	handshake    time.Duration
}

func (o *relayOptions) specs() ([]relaySpec, error) {
	if o.configPath != "" {
		return loadRelayConfig(o.configPath)
	}
	if o.upstream == "" {
		return nil, errors.New("either --upstream or --config is required")
	}
	kind, err := ParseKind(o.kind)
	if err != nil {
		return nil, err
	}
	host, port, err := splitHostPort(o.upstream)
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}
	return []relaySpec{{
		Session: o.session,
		Kind:    kind,
		Upstream: Upstream{
			Host:     host,
			Port:     port,
			Username: o.username,
			Password: o.password,
		},
	}}, nil
}

func NewCommand(globals *runtime.Options) *cobra.Command {
	opts := &relayOptions{
		kind:         config.GetStringEnv("RELAY_TYPE", string(KindHTTP)),
		upstream:     config.GetStringEnv("UPSTREAM", ""),
		username:     config.GetStringEnv("UPSTREAM_USERNAME", ""),
		password:     config.GetStringEnv("UPSTREAM_PASSWORD", ""),
		session:      config.GetStringEnv("SESSION", "default"),
		listenHost:   "127.0.0.1",
		statusListen: config.GetStringEnv("STATUS_LISTEN", ""),
		dialTimeout:  config.GetDurationEnv("DIAL_TIMEOUT", 15*time.Second),
		handshake:    config.GetDurationEnv("HANDSHAKE_TIMEOUT", 30*time.Second),
	}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run local unauthenticated proxy relays in front of authenticated upstream proxies",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := util.WithSignalContext(cmd.Context(), globals.ComponentLogger("relay"))
			defer cancel()
			return runRelays(ctx, cmd, globals, opts)
		},
	}

	cmd.Flags().StringVar(&opts.kind, "type", opts.kind, "upstream proxy type (http or socks5)")
	cmd.Flags().StringVar(&opts.upstream, "upstream", opts.upstream, "upstream proxy host:port")
	cmd.Flags().StringVar(&opts.username, "username", opts.username, "upstream proxy username")
	cmd.Flags().StringVar(&opts.password, "password", opts.password, "upstream proxy password")
	cmd.Flags().StringVar(&opts.session, "session", opts.session, "session (profile) id the relay belongs to")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "YAML file with a list of relays (overrides single-relay flags)")
	cmd.Flags().StringVar(&opts.listenHost, "listen-host", opts.listenHost, "interface the local relays bind to")
	cmd.Flags().StringVar(&opts.statusListen, "status-listen", opts.statusListen, "optional address for /metrics and /status.json")
	cmd.Flags().StringVar(&opts.probe, "probe", "", "check credentials by tunnelling to this host:port before starting")
	cmd.Flags().DurationVar(&opts.dialTimeout, "dial-timeout", opts.dialTimeout, "timeout for connecting to the upstream proxy")
	cmd.Flags().DurationVar(&opts.handshake, "handshake-timeout", opts.handshake, "SOCKS5 handshake timeout")

	return cmd
}

func runRelays(ctx context.Context, cmd *cobra.Command, globals *runtime.Options, opts *relayOptions) error {
	logger := globals.ComponentLogger("relay")
	specs, err := opts.specs()
	if err != nil {
		return err
	}

	if opts.probe != "" {
		for _, spec := range specs {
			if err := Probe(ctx, spec.Kind, spec.Upstream, opts.probe, opts.dialTimeout); err != nil {
				return fmt.Errorf("probe %s via %s: %w", opts.probe, spec.Session, err)
			}
			logger.Info("upstream probe succeeded", "session", spec.Session, "target", opts.probe)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mgr := NewManager(ManagerOptions{
		ListenHost:       opts.listenHost,
		DialTimeout:      opts.dialTimeout,
		HandshakeTimeout: opts.handshake,
		Metrics:          metrics.New(reg),
		Logger:           globals.Logger(),
	})

	for _, spec := range specs {
		port, err := mgr.Start(spec.Kind, spec.Upstream, spec.Session)
		if err != nil {
			mgr.StopAll()
			return fmt.Errorf("start relay %s: %w", spec.Session, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t--proxy-server=http://%s:%d\n", spec.Session, opts.listenHost, port)
	}

	if opts.statusListen != "" {
		srv := status.New(status.Options{
			Addr:     opts.statusListen,
			Gatherer: reg,
			Logger:   globals.Logger(),
			Sections: map[string]status.Provider{
				"relays":  func() any { return mgr.Registry().Handles() },
				"traffic": func() any { return mgr.Traffic().All() },
			},
			Routes: map[string]http.Handler{
				"/autoconfig/": mgr.AutoConfigHandler(),
			},
		})
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
	}

	mgr.Serve(ctx)
	return nil
}
