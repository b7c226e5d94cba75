package stub_publishers_registry

import (
	"sync"

	"github.com/al-kimmel-serj/media-bus"
)

// Client serves a fixed endpoint list to every watcher and records
// registrations in memory.
type Client struct {
	endpoints []bus.PublisherEndpoint

	mu         sync.Mutex
	registered map[bus.Event]int
}

func (c *Client) Register(event bus.Event, _ string, _ int) (func() error, error) {
	c.mu.Lock()
	c.registered[event]++
	c.mu.Unlock()

	var once sync.Once
	return func() error {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.registered[event]--
			if c.registered[event] <= 0 {
				delete(c.registered, event)
			}
		})
		return nil
	}, nil
}

func (c *Client) Watch(_ bus.Event, handler func([]bus.PublisherEndpoint)) (func() error, error) {
	go handler(c.endpoints)
	return func() error {
		return nil
	}, nil
}

// Registered reports whether event is currently advertised.
func (c *Client) Registered(event bus.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.registered[event] > 0
}

func New(endpoints []bus.PublisherEndpoint) *Client {
	return &Client{
		endpoints:  endpoints,
		registered: make(map[bus.Event]int),
	}
}
