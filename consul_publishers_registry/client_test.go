package consul_publishers_registry

import (
	"testing"

	"github.com/al-kimmel-serj/media-bus"
	"github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
)

func TestGenerateServiceID(t *testing.T) {
	event := bus.Event{Publisher: "packager-1", ID: "segment-ready"}

	id := GenerateServiceID(event, "10.0.0.1", 5555)
	assert.Regexp(t, `^media-bus-packager-1-segment-ready-10-0-0-1-5555-[0-9a-f]{16}$`, id)
	assert.Equal(t, id, GenerateServiceID(event, "10.0.0.1", 5555))
}

func TestGenerateServiceIDDistinguishesSanitizedNames(t *testing.T) {
	dotted := GenerateServiceID(bus.Event{Publisher: "packager-1", ID: "segment.ready"}, "10.0.0.1", 5555)
	underscored := GenerateServiceID(bus.Event{Publisher: "packager-1", ID: "segment_ready"}, "10.0.0.1", 5555)
	assert.NotEqual(t, dotted, underscored)

	assert.NotEqual(t,
		GenerateServiceID(bus.Event{Publisher: "packager-1", ID: "segment-ready"}, "10.0.0.1", 5555),
		GenerateServiceID(bus.Event{Publisher: "packager-1", ID: "segment-ready"}, "10-0-0-1", 5555),
	)
}

func TestEndpoints(t *testing.T) {
	entries := []*api.ServiceEntry{
		{Service: &api.AgentService{Address: "10.0.0.1", Port: 5555}},
		nil,
		{},
		{Service: &api.AgentService{Address: "10.0.0.2", Port: 6000}},
	}

	assert.Equal(t, []bus.PublisherEndpoint{
		"tcp://10.0.0.1:5555",
		"tcp://10.0.0.2:6000",
	}, Endpoints(entries))
}

func TestNewUsesAddress(t *testing.T) {
	c := New("consul.internal:8500", nil)
	assert.Equal(t, "consul.internal:8500", c.config.Address)
}
