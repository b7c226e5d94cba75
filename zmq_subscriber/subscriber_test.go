package zmq_subscriber

import (
	"sort"
	"testing"
	"time"

	"github.com/al-kimmel-serj/media-bus"
	"github.com/stretchr/testify/assert"
)

func TestPublishersDiff(t *testing.T) {
	s := &Subscriber{}
	old := map[bus.PublisherEndpoint]struct{}{
		"tcp://10.0.0.1:5555": {},
		"tcp://10.0.0.2:5555": {},
	}

	open, closing := s.publishersDiff(old, []bus.PublisherEndpoint{
		"tcp://10.0.0.2:5555",
		"tcp://10.0.0.3:5555",
	})

	assert.Equal(t, []bus.PublisherEndpoint{"tcp://10.0.0.3:5555"}, open)
	assert.Equal(t, []bus.PublisherEndpoint{"tcp://10.0.0.1:5555"}, closing)

	open, closing = s.publishersDiff(old, nil)
	assert.Empty(t, open)
	sort.Slice(closing, func(i, j int) bool { return closing[i] < closing[j] })
	assert.Equal(t, []bus.PublisherEndpoint{"tcp://10.0.0.1:5555", "tcp://10.0.0.2:5555"}, closing)
}

func TestFilter(t *testing.T) {
	event := bus.Event{Publisher: "packager-1", ID: "segment-ready"}
	assert.Equal(t, "packager-1:segment-ready\x00", Filter(event))
}

func TestUpdatePublishersHandsEndpointsToReader(t *testing.T) {
	// No socket: the watch handler must not touch it.
	s := &Subscriber{
		endpointsChan:      make(chan []bus.PublisherEndpoint),
		readerShutdownChan: make(chan struct{}),
	}

	endpoints := []bus.PublisherEndpoint{"tcp://10.0.0.1:5555"}
	go s.updatePublishers(endpoints)

	select {
	case got := <-s.endpointsChan:
		assert.Equal(t, endpoints, got)
	case <-time.After(time.Second):
		t.Fatal("endpoints not handed to the reader")
	}
}

func TestUpdatePublishersAfterShutdown(t *testing.T) {
	s := &Subscriber{
		endpointsChan:      make(chan []bus.PublisherEndpoint),
		readerShutdownChan: make(chan struct{}),
	}
	close(s.readerShutdownChan)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.updatePublishers([]bus.PublisherEndpoint{"tcp://10.0.0.1:5555"})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updatePublishers blocked after shutdown")
	}
}

func TestNewRejectsInvalidEvent(t *testing.T) {
	_, err := New(bus.Event{Publisher: "packager-1", ID: "seg\x00ready"}, "ingest-1", nil, nil, nil)
	assert.ErrorIs(t, err, bus.ErrInvalidName)
}
