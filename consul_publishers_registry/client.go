package consul_publishers_registry

import (
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/al-kimmel-serj/media-bus"
	"github.com/hashicorp/consul/api"
	"github.com/hashicorp/consul/api/watch"
	"github.com/minio/sha256-simd"
	"github.com/sirupsen/logrus"
)

const (
	ServiceName = "media-bus"
)

var (
	serviceIDForbiddenCharsRegEx = regexp.MustCompile("[^0-9A-Za-z-]+")
)

// Client advertises exported bus events as consul services tagged with the
// event topic.
type Client struct {
	config *api.Config
	logger logrus.FieldLogger
}

// New builds a client for the agent at address; an empty address uses the
// consul defaults (CONSUL_HTTP_ADDR or 127.0.0.1:8500).
func New(address string, logger logrus.FieldLogger) *Client {
	config := api.DefaultConfig()
	if address != "" {
		config.Address = address
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		config: config,
		logger: logger,
	}
}

func (c *Client) Register(event bus.Event, host string, port int) (func() error, error) {
	consulClient, err := api.NewClient(c.config)
	if err != nil {
		return nil, fmt.Errorf("api.NewClient error: %w", err)
	}

	serviceID := GenerateServiceID(event, host, port)
	err = consulClient.Agent().ServiceRegisterOpts(&api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    ServiceName,
		Address: host,
		Port:    port,
		Tags: []string{
			event.Topic(),
		},
	}, api.ServiceRegisterOpts{
		ReplaceExistingChecks: true,
	})
	if err != nil {
		return nil, fmt.Errorf("api.Agent.ServiceRegisterOpts error: %w", err)
	}

	return func() error {
		return consulClient.Agent().ServiceDeregister(serviceID)
	}, nil
}

func (c *Client) Watch(event bus.Event, handler func([]bus.PublisherEndpoint)) (func() error, error) {
	plan, err := watch.Parse(map[string]interface{}{
		"type":        "service",
		"service":     ServiceName,
		"tag":         []string{event.Topic()},
		"passingonly": true,
	})
	if err != nil {
		return nil, fmt.Errorf("watch.Parse error: %w", err)
	}

	var lastIndex uint64
	plan.Handler = func(index uint64, result interface{}) {
		if lastIndex >= index {
			return
		}
		lastIndex = index

		serviceEntries, ok := result.([]*api.ServiceEntry)
		if !ok {
			return
		}

		handler(Endpoints(serviceEntries))
	}

	go func() {
		err := plan.RunWithConfig(c.config.Address, c.config)
		if err != nil {
			c.logger.WithField("event", event).WithError(err).Error("consul watch stopped")
		}
	}()

	return func() error {
		plan.Stop()
		return nil
	}, nil
}

func Endpoints(serviceEntries []*api.ServiceEntry) []bus.PublisherEndpoint {
	var endpoints []bus.PublisherEndpoint
	for _, entry := range serviceEntries {
		if entry == nil || entry.Service == nil {
			continue
		}
		endpoints = append(
			endpoints,
			bus.PublisherEndpoint(fmt.Sprintf("tcp://%s:%d", entry.Service.Address, entry.Service.Port)),
		)
	}
	return endpoints
}

// GenerateServiceID is unique per exported event and listening socket. The
// readable part is lossy, so a digest of the exact topic and address is
// appended.
func GenerateServiceID(event bus.Event, host string, port int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", event.Topic(), host, port)))
	return serviceIDForbiddenCharsRegEx.ReplaceAllString(
		fmt.Sprintf("media-bus-%s-%s-%d", event.Topic(), host, port),
		"-",
	) + "-" + hex.EncodeToString(sum[:8])
}
