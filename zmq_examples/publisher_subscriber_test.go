package zmq_examples

import (
	"context"
	"fmt"
	"time"

	"github.com/al-kimmel-serj/media-bus"
	"github.com/al-kimmel-serj/media-bus/addr_book"
	"github.com/al-kimmel-serj/media-bus/stub_publishers_registry"
	"github.com/al-kimmel-serj/media-bus/zmq_publisher"
	"github.com/al-kimmel-serj/media-bus/zmq_subscriber"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func Example() {
	registry := stub_publishers_registry.New([]bus.PublisherEndpoint{
		"tcp://127.0.0.1:5555",
	})

	// Two buses stand in for two processes.
	packagerBus := bus.New()
	ingestBus := bus.New()

	segmentReady := bus.Event{Publisher: "packager-1", ID: "segment-ready"}

	packager, err := packagerBus.Register("packager-1")
	if err != nil {
		panic(err)
	}
	err = packager.RegisterEvent(segmentReady.ID)
	if err != nil {
		panic(err)
	}

	publisher, err := zmq_publisher.New(packagerBus, "127.0.0.1", 5555, []bus.Event{segmentReady}, registry, nil)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	running := make(chan struct{})
	go func() {
		defer close(running)
		publisher.Run(ctx)
	}()

	ingest, err := ingestBus.Register("ingest-1")
	if err != nil {
		panic(err)
	}

	book, err := addr_book.New(ingestBus, addr_book.DefaultSize)
	if err != nil {
		panic(err)
	}

	subscriber, err := zmq_subscriber.New(segmentReady, ingest.Name(), registry, book, nil)
	if err != nil {
		panic(err)
	}

	time.Sleep(200 * time.Millisecond)

	err = packager.Broadcast(segmentReady.ID, wrapperspb.String("seg-0001.ts"))
	if err != nil {
		panic(err)
	}

	msg, ok := ingest.NextMessage(context.Background())
	if !ok {
		panic("ingest-1 closed")
	}

	payload, err := bus.UnmarshalPayload(msg.Payload.Data)
	if err != nil {
		panic(err)
	}
	var segment wrapperspb.StringValue
	err = payload.Decode(&segment)
	if err != nil {
		panic(err)
	}
	fmt.Println(segment.GetValue())

	err = subscriber.Stop()
	if err != nil {
		panic(err)
	}

	cancel()
	<-running

	err = publisher.Stop()
	if err != nil {
		panic(err)
	}

	_ = ingest.Close()
	_ = packager.Close()

	// Output: seg-0001.ts
}
