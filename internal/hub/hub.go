package hub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/vkotov/planhub/internal/model"
)

var (
	ErrNotMember = errors.New("not a member of this channel")
	ErrStopped   = errors.New("hub stopped")
)

// Subscriber is one live connection. Send must not block; it reports false
// when the connection is gone, which makes the hub drop it from every
// channel.
type Subscriber interface {
	ID() string
	UserUID() string
	Send(evt *model.WsEvent) bool
}

// Hub is the room membership registry and the event fan-out router. All
// state is owned by a single goroutine fed through a command queue, so per
// channel delivery order is the order the router processed the events in.
type Hub struct {
	logger *slog.Logger

	cmd  chan func()
	done chan struct{}

	channels map[uint]map[string]Subscriber
	joined   map[string]map[uint]struct{}
}

func New() *Hub {
	return &Hub{
		logger:   slog.Default().With("logger", "hub"),
		cmd:      make(chan func(), 64),
		done:     make(chan struct{}),
		channels: make(map[uint]map[string]Subscriber),
		joined:   make(map[string]map[uint]struct{}),
	}
}

func (h *Hub) Start() {
	go h.run()
}

func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) run() {
	for {
		select {
		case f := <-h.cmd:
			f()
		case <-h.done:
			return
		}
	}
}

func (h *Hub) do(f func()) error {
	fin := make(chan struct{})

	select {
	case h.cmd <- func() { f(); close(fin) }:
	case <-h.done:
		return ErrStopped
	}

	select {
	case <-fin:
		return nil
	case <-h.done:
		return ErrStopped
	}
}

// Join subscribes the connection to the project channel and tells the other
// subscribers. Joining twice is a no-op.
func (h *Hub) Join(s Subscriber, projectID uint) error {
	return h.do(func() {
		subs := h.channels[projectID]

		if subs == nil {
			subs = make(map[string]Subscriber)
			h.channels[projectID] = subs
			channelsMetric.Inc()
		}

		if _, ok := subs[s.ID()]; ok {
			return
		}

		h.broadcast(projectID, s.ID(), &model.WsEvent{
			Type:      model.MsgMemberJoined,
			ProjectID: projectID,
			User:      s.UserUID(),
			Time:      time.Now(),
		})

		subs[s.ID()] = s

		if h.joined[s.ID()] == nil {
			h.joined[s.ID()] = make(map[uint]struct{})
		}

		h.joined[s.ID()][projectID] = struct{}{}
		subscriptionsMetric.Inc()
	})
}

// Leave unsubscribes the connection and tells the remaining subscribers.
// Leaving a channel that was never joined is a no-op.
func (h *Hub) Leave(s Subscriber, projectID uint) error {
	return h.do(func() {
		h.leave(s.ID(), s.UserUID(), projectID)
	})
}

// Publish stamps the event with the sender identity and a server-side
// timestamp and rebroadcasts it to every other subscriber of the channel.
// The payload is routed opaquely. Publishing to a channel the connection has
// not joined fails, it never leaks anywhere.
func (h *Hub) Publish(s Subscriber, projectID uint, kind string, payload json.RawMessage) error {
	var err error

	doErr := h.do(func() {
		subs := h.channels[projectID]

		if subs == nil {
			err = ErrNotMember
			return
		}

		if _, ok := subs[s.ID()]; !ok {
			err = ErrNotMember
			return
		}

		eventsMetric.WithLabelValues(kind).Inc()

		h.broadcast(projectID, s.ID(), &model.WsEvent{
			Type:      kind,
			ProjectID: projectID,
			User:      s.UserUID(),
			Time:      time.Now(),
			Payload:   payload,
		})
	})

	if doErr != nil {
		return doErr
	}

	return err
}

// Disconnect runs the implicit leave for every channel the connection
// belonged to. Safe to call for connections that never joined anything.
func (h *Hub) Disconnect(s Subscriber) {
	_ = h.do(func() {
		h.disconnect(s.ID(), s.UserUID())
	})
}

func (h *Hub) leave(connID, userUID string, projectID uint) {
	subs := h.channels[projectID]

	if subs == nil {
		return
	}

	if _, ok := subs[connID]; !ok {
		return
	}

	delete(subs, connID)
	subscriptionsMetric.Dec()

	if set := h.joined[connID]; set != nil {
		delete(set, projectID)

		if len(set) == 0 {
			delete(h.joined, connID)
		}
	}

	if len(subs) == 0 {
		delete(h.channels, projectID)
		channelsMetric.Dec()

		return
	}

	h.broadcast(projectID, connID, &model.WsEvent{
		Type:      model.MsgMemberLeft,
		ProjectID: projectID,
		User:      userUID,
		Time:      time.Now(),
	})
}

func (h *Hub) disconnect(connID, userUID string) {
	for projectID := range h.joined[connID] {
		h.leave(connID, userUID, projectID)
	}
}

// broadcast delivers to every subscriber of the channel except the sender.
// A subscriber whose Send fails is dead and is dropped from all channels,
// exactly like a disconnect.
func (h *Hub) broadcast(projectID uint, exclude string, evt *model.WsEvent) {
	var dead []Subscriber

	for id, s := range h.channels[projectID] {
		if id == exclude {
			continue
		}

		if !s.Send(evt) {
			droppedMetric.Inc()
			dead = append(dead, s)
		}
	}

	for _, s := range dead {
		h.logger.Debug("dropping dead subscriber " + s.ID())
		h.disconnect(s.ID(), s.UserUID())
	}
}
