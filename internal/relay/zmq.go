// Package relay forwards detection events to message transports for
// headless consumers.
package relay

import (
	"fmt"

	"github.com/pebbe/zmq4"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/bodydetect/internal/event"
)

// ZMQ publishes events on a ZeroMQ PUB socket as two-part messages:
// the event type, then the encoded event.
type ZMQ struct {
	socket *zmq4.Socket
	codec  event.Codec
	queue  *event.ChanSink
	done   chan struct{}
}

// NewZMQ binds a PUB socket to endpoint.
func NewZMQ(endpoint string, codec event.Codec, buffer int) (*ZMQ, error) {
	socket, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, err
	}
	if err := socket.Bind(endpoint); err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("bind %s: %w", endpoint, err)
	}

	z := &ZMQ{
		socket: socket,
		codec:  codec,
		queue:  event.NewChanSink(buffer),
		done:   make(chan struct{}),
	}
	go z.loop()

	log.WithFields(log.Fields{"endpoint": endpoint, "codec": codec.Name()}).Info("ZeroMQ event relay bound")
	return z, nil
}

// Send implements event.Sink.
func (z *ZMQ) Send(ev event.Event) {
	z.queue.Send(ev)
}

// The socket is only touched from this goroutine.
func (z *ZMQ) loop() {
	defer close(z.done)
	for ev := range z.queue.C() {
		payload, err := z.codec.Encode(ev)
		if err != nil {
			log.WithError(err).Warn("ZeroMQ relay encode failed")
			continue
		}
		if _, err := z.socket.SendMessage(string(ev.Type()), payload); err != nil {
			log.WithError(err).Warn("ZeroMQ relay send failed")
		}
	}
}

// Close drains queued events and closes the socket.
func (z *ZMQ) Close() error {
	z.queue.Close()
	<-z.done
	return z.socket.Close()
}
