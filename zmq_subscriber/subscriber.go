package zmq_subscriber

import (
	"bytes"
	"fmt"
	"syscall"
	"time"

	"github.com/al-kimmel-serj/media-bus"
	"github.com/al-kimmel-serj/media-bus/addr_book"
	"github.com/pebbe/zmq4"
)

const pollInterval = 100 * time.Millisecond

// Subscriber imports one remote event into the bus. It follows the
// publishers registry for endpoints of the event and pushes every frame body,
// still encoded, into the mailbox of a local member through an addr_book.
// Receivers recover the payload with bus.UnmarshalPayload.
//
// The socket is owned by the reader goroutine: registry updates and shutdown
// reach it through channels and are applied between polls.
type Subscriber struct {
	book               *addr_book.Book
	endpointsChan      chan []bus.PublisherEndpoint
	errorHandler       func(error)
	event              bus.Event
	publishers         map[bus.PublisherEndpoint]struct{}
	readerDone         chan struct{}
	readerShutdownChan chan struct{}
	stopWatcher        func() error
	to                 bus.Name
	zmqContext         *zmq4.Context
	zmqSocket          *zmq4.Socket
}

func New(
	event bus.Event,
	to bus.Name,
	publishersRegistryWatcher bus.PublishersRegistry,
	book *addr_book.Book,
	errorHandler func(error),
) (*Subscriber, error) {
	err := event.Validate()
	if err != nil {
		return nil, err
	}

	s := &Subscriber{
		book:               book,
		endpointsChan:      make(chan []bus.PublisherEndpoint),
		errorHandler:       errorHandler,
		event:              event,
		publishers:         make(map[bus.PublisherEndpoint]struct{}),
		readerDone:         make(chan struct{}),
		readerShutdownChan: make(chan struct{}),
		to:                 to,
	}

	s.zmqContext, err = zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("zmq4.NewContext error: %w", err)
	}
	s.zmqSocket, err = s.zmqContext.NewSocket(zmq4.SUB)
	if err != nil {
		_ = s.zmqContext.Term()
		return nil, fmt.Errorf("zmq4.Context.NewSocket error: %w", err)
	}
	err = s.zmqSocket.SetLinger(0)
	if err != nil {
		_ = s.zmqSocket.Close()
		_ = s.zmqContext.Term()
		return nil, fmt.Errorf("zmq4.Socket.SetLinger error: %w", err)
	}
	err = s.zmqSocket.SetSubscribe(Filter(event))
	if err != nil {
		_ = s.zmqSocket.Close()
		_ = s.zmqContext.Term()
		return nil, fmt.Errorf("zmq4.Socket.SetSubscribe error: %w", err)
	}

	go s.reader()

	s.stopWatcher, err = publishersRegistryWatcher.Watch(event, s.updatePublishers)
	if err != nil {
		_ = s.stopReader()
		return nil, fmt.Errorf("PublishersRegistry.Watch error: %w", err)
	}

	return s, nil
}

// Filter is the subscription prefix of event. The trailing delimiter keeps
// "a:b" from matching "a:bc".
func Filter(event bus.Event) string {
	return event.Topic() + string(bus.TopicAndPayloadDelimiter)
}

func (s *Subscriber) Stop() error {
	err := s.stopWatcher()
	if err != nil {
		return err
	}

	err = s.stopReader()
	if err != nil {
		return err
	}

	return nil
}

func (s *Subscriber) publishersDiff(
	oldPublishers map[bus.PublisherEndpoint]struct{},
	freshPublishers []bus.PublisherEndpoint,
) ([]bus.PublisherEndpoint, []bus.PublisherEndpoint) {
	var endpointsForOpen, endpointsForClose []bus.PublisherEndpoint

	fresh := make(map[bus.PublisherEndpoint]struct{}, len(freshPublishers))
	for _, freshEndpoint := range freshPublishers {
		fresh[freshEndpoint] = struct{}{}
		if _, ok := oldPublishers[freshEndpoint]; !ok {
			endpointsForOpen = append(endpointsForOpen, freshEndpoint)
		}
	}

	for oldEndpoint := range oldPublishers {
		if _, ok := fresh[oldEndpoint]; !ok {
			endpointsForClose = append(endpointsForClose, oldEndpoint)
		}
	}

	return endpointsForOpen, endpointsForClose
}

func (s *Subscriber) reader() {
	defer close(s.readerDone)

	poller := zmq4.NewPoller()
	poller.Add(s.zmqSocket, zmq4.POLLIN)

	for {
		select {
		case <-s.readerShutdownChan:
			s.applyPublishers(nil)
			_ = s.zmqSocket.Close()
			return
		case endpoints := <-s.endpointsChan:
			s.applyPublishers(endpoints)
		default:
		}

		polled, err := poller.Poll(pollInterval)
		if err != nil {
			if zmq4.AsErrno(err) == zmq4.ETERM {
				_ = s.zmqSocket.Close()
				return
			}
			s.handleError(err)
			continue
		}
		if len(polled) == 0 {
			continue
		}

		msgBytes, err := s.zmqSocket.RecvBytes(zmq4.DONTWAIT)
		if err != nil {
			if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
				continue
			}
			s.handleError(err)
			continue
		}

		delimiterIndex := bytes.IndexByte(msgBytes, bus.TopicAndPayloadDelimiter)
		if delimiterIndex < 0 {
			s.handleError(fmt.Errorf("frame without topic delimiter from %s", s.event))
			continue
		}

		err = s.book.Send(s.to, msgBytes[delimiterIndex+1:])
		if err != nil {
			s.handleError(fmt.Errorf("forward %s to %s: %w", s.event, s.to, err))
		}
	}
}

// stopReader waits for the reader to disconnect and close the socket before
// the context is terminated.
func (s *Subscriber) stopReader() error {
	close(s.readerShutdownChan)
	<-s.readerDone

	return s.zmqContext.Term()
}

// updatePublishers is the registry watch handler. It only hands the endpoint
// list to the reader goroutine.
func (s *Subscriber) updatePublishers(endpoints []bus.PublisherEndpoint) {
	select {
	case s.endpointsChan <- endpoints:
	case <-s.readerShutdownChan:
	}
}

// applyPublishers runs on the reader goroutine only.
func (s *Subscriber) applyPublishers(endpoints []bus.PublisherEndpoint) {
	endpointsForOpen, endpointsForClose := s.publishersDiff(s.publishers, endpoints)

	for _, endpoint := range endpointsForOpen {
		err := s.zmqSocket.Connect(string(endpoint))
		if err != nil {
			s.handleError(err)
			continue
		}
		s.publishers[endpoint] = struct{}{}
	}

	for _, endpoint := range endpointsForClose {
		err := s.zmqSocket.Disconnect(string(endpoint))
		if err != nil {
			s.handleError(err)
		}
		delete(s.publishers, endpoint)
	}
}

func (s *Subscriber) handleError(err error) {
	if s.errorHandler != nil {
		s.errorHandler(err)
	}
}
