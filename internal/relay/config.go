package relay

import (
	"fmt"
	"os"
	"strings"

	"github.com/drksbr/browserrelay/internal/config"
)

type relayConfigEntry struct {
	Session  string `yaml:"session"`
	Type     string `yaml:"type"`
	Upstream string `yaml:"upstream"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// relaySpec is one validated relay definition.
type relaySpec struct {
	Session  string
	Kind     Kind
	Upstream Upstream
}

// loadRelayConfig reads a YAML file with a top-level "relays" list.
// Credentials may reference environment variables as ${NAME}.
func loadRelayConfig(path string) ([]relaySpec, error) {
	var wrapper struct {
		Relays []relayConfigEntry `yaml:"relays"`
	}
	if err := config.LoadYAML(path, &wrapper); err != nil {
		return nil, err
	}
	if len(wrapper.Relays) == 0 {
		return nil, fmt.Errorf("relay config %q must define at least one relay", path)
	}

	specs := make([]relaySpec, 0, len(wrapper.Relays))
	seen := make(map[string]struct{}, len(wrapper.Relays))
	for idx, entry := range wrapper.Relays {
		session := strings.TrimSpace(entry.Session)
		if session == "" {
			return nil, fmt.Errorf("relay entry %d missing session", idx+1)
		}
		if _, dup := seen[session]; dup {
			return nil, fmt.Errorf("duplicate relay session %q", session)
		}
		seen[session] = struct{}{}

		kind, err := ParseKind(entry.Type)
		if err != nil {
			return nil, fmt.Errorf("relay %q: %w", session, err)
		}
		host, port, err := splitHostPort(entry.Upstream)
		if err != nil {
			return nil, fmt.Errorf("relay %q upstream: %w", session, err)
		}
		specs = append(specs, relaySpec{
			Session: session,
			Kind:    kind,
			Upstream: Upstream{
				Host:     host,
				Port:     port,
				Username: os.ExpandEnv(entry.Username),
				Password: os.ExpandEnv(entry.Password),
			},
		})
	}
	return specs, nil
}
