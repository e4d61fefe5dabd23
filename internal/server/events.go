package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/bodydetect/internal/event"
)

const (
	// Time allowed to write a message to the subscriber.
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second

	// CloseSuperseded is the close reason sent to a subscriber replaced by
	// a newer one.
	CloseSuperseded = "superseded"
)

// EventsHandler streams detection events to a single websocket subscriber.
// Connecting registers the subscriber with the multiplexer; a second
// connection replaces the first, which is closed.
type EventsHandler struct {
	upgrader websocket.Upgrader
	events   *event.Multiplexer
	codec    event.Codec
	buffer   int
}

// NewEventsHandler creates an EventsHandler publishing from m. codec is the
// default when the subscriber does not pass ?codec=.
func NewEventsHandler(m *event.Multiplexer, codec event.Codec, buffer int) *EventsHandler {
	if codec == nil {
		codec = event.JSONCodec{}
	}
	if buffer <= 0 {
		buffer = 16
	}
	return &EventsHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow local connections
			},
		},
		events: m,
		codec:  codec,
		buffer: buffer,
	}
}

// subscriber is the sink registered for one websocket connection.
type subscriber struct {
	*event.ChanSink
	superseded chan struct{}
	once       sync.Once
}

func (s *subscriber) supersede() {
	s.once.Do(func() { close(s.superseded) })
}

// ServeHTTP handles websocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	codec := h.codec
	if name := r.URL.Query().Get("codec"); name != "" {
		c, err := event.CodecByName(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		codec = c
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			log.WithField("addr", r.RemoteAddr).Errorf("Websocket handshake failed for event stream: %v", err)
		}
		return
	}
	h.serve(ws, codec)
}

func (h *EventsHandler) serve(ws *websocket.Conn, codec event.Codec) {
	clog := log.WithFields(log.Fields{"addr": ws.RemoteAddr(), "codec": codec.Name()})
	clog.Info("connected to event stream")

	sub := &subscriber{
		ChanSink:   event.NewChanSink(h.buffer),
		superseded: make(chan struct{}),
	}
	if prev, ok := h.events.Register(sub).(*subscriber); ok {
		prev.supersede()
	}
	defer func() {
		h.events.Unregister(sub)
		sub.Close()
		ws.Close()
		_, dropped := sub.Stats()
		clog.WithField("dropped", dropped).Info("disconnected from event stream")
	}()

	// Incoming messages are ignored but must be read to process control
	// frames and notice the client going away.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	msgType := websocket.TextMessage
	if codec.Binary() {
		msgType = websocket.BinaryMessage
	}

	for {
		select {
		case ev := <-sub.C():
			data, err := codec.Encode(ev)
			if err != nil {
				clog.WithError(err).Warn("Failed to encode event")
				continue
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(msgType, data); err != nil {
				return
			}
		case <-pingTicker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-sub.superseded:
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, CloseSuperseded)
			ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		case <-readDone:
			return
		}
	}
}
