package consul

import (
	"errors"
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
)

type Registration struct {
	ServiceName string
	Host        string
	Port        int
	Tags        []string
}

func (r Registration) id() string {
	return fmt.Sprintf("%s-%s-%d", r.ServiceName, r.Host, r.Port)
}

// NewClient returns a consul client for addr, or the agent default when addr is empty.
func NewClient(addr string) (*consulapi.Client, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	return client, nil
}

// RegisterService registers the service with an HTTP check against /ping.
// The returned func deregisters it.
func RegisterService(client *consulapi.Client, r Registration) (func() error, error) {
	if client == nil {
		return nil, errors.New("consul client is nil")
	}
	reg := &consulapi.AgentServiceRegistration{
		ID:      r.id(),
		Name:    r.ServiceName,
		Address: r.Host,
		Port:    r.Port,
		Tags:    r.Tags,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/ping", r.Host, r.Port),
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := client.Agent().ServiceRegister(reg); err != nil {
		return nil, fmt.Errorf("failed to register service %s: %w", r.ServiceName, err)
	}
	return func() error {
		return client.Agent().ServiceDeregister(r.id())
	}, nil
}
