package wshandler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/vkotov/planhub/internal/auth"
	"github.com/vkotov/planhub/internal/hub"
	"github.com/vkotov/planhub/internal/model"
)

// Members answers the project-membership fact for a joining user. It is
// provided from outside, the realtime layer never owns membership.
type Members interface {
	IsMember(projectID uint, uid string) bool
}

// Projects applies the one persistence side effect a publish may carry, the
// project status update. Its failure is reported to the sender only and
// never stops the fan-out.
type Projects interface {
	SetStatus(projectID uint, status, uid string) error
}

type WsHandler struct {
	log     *slog.Logger
	name    string
	user    *auth.Identity
	ws      *websocket.Conn
	hub     *hub.Hub
	members Members
	project Projects

	ping time.Duration

	mx     sync.Mutex
	ch     chan *model.WsEvent
	active int32
}

func NewHandler(name string, user *auth.Identity, ws *websocket.Conn, h *hub.Hub, members Members, project Projects, ping time.Duration) *WsHandler {
	return &WsHandler{
		log:     slog.Default().With("logger", "ws", "client", name, "user", user.Login),
		name:    name,
		user:    user,
		ws:      ws,
		hub:     h,
		members: members,
		project: project,
		ping:    ping,
		ch:      make(chan *model.WsEvent, 32),
		active:  1,
	}
}

func (w *WsHandler) ID() string {
	return w.name
}

func (w *WsHandler) UserUID() string {
	return w.user.Login
}

func (w *WsHandler) IsActive() bool {
	return w != nil && atomic.LoadInt32(&w.active) == 1
}

// Send queues the event for delivery. The queue is best-effort: a full
// buffer drops the event, a stopped handler reports false so the hub can
// clean up. The send is serialized with stop, the hub goroutine must never
// hit a closed channel.
func (w *WsHandler) Send(evt *model.WsEvent) bool {
	if w == nil || !w.IsActive() {
		return false
	}

	w.mx.Lock()
	defer w.mx.Unlock()

	// stop may have won the race since the flag check
	if !w.IsActive() {
		return false
	}

	select {
	case w.ch <- evt:
	default:
	}

	return true
}

func (w *WsHandler) stop() {
	if atomic.CompareAndSwapInt32(&w.active, 1, 0) {
		w.mx.Lock()
		close(w.ch)
		w.mx.Unlock()

		if w.ws != nil {
			w.ws.Close()
		}
	}
}

func (w *WsHandler) writer() {
	ticker := time.NewTicker(w.ping)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-w.ch:
			if !ok || !w.IsActive() {
				return
			}

			if evt == nil {
				continue
			}

			_ = w.ws.WriteJSON(evt)
		case <-ticker.C:
			if err := w.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second*5)); err != nil {
				return
			}
		}
	}
}

func (w *WsHandler) reader() {
	defer w.stop()

	wait := w.ping * 2

	_ = w.ws.SetReadDeadline(time.Now().Add(wait))
	w.ws.SetPongHandler(func(string) error {
		return w.ws.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := w.ws.ReadMessage()

		if err != nil {
			w.log.Debug("error on read", slog.Any("error", err))

			return
		}

		_ = w.ws.SetReadDeadline(time.Now().Add(wait))

		w.process(data)
	}
}

// process handles one client message. A malformed message errors back to
// this client only, it never affects other connections.
func (w *WsHandler) process(data []byte) {
	var req model.WsRequest

	if err := json.Unmarshal(data, &req); err != nil {
		w.sendError(0, "malformed message")

		return
	}

	if req.ProjectID == 0 {
		w.sendError(0, "missing project id")

		return
	}

	switch {
	case req.Type == model.MsgJoin:
		if !w.members.IsMember(req.ProjectID, w.user.Login) {
			w.sendError(req.ProjectID, "not a project member")

			return
		}

		if err := w.hub.Join(w, req.ProjectID); err != nil {
			w.sendError(req.ProjectID, err.Error())
		}
	case req.Type == model.MsgLeave:
		if err := w.hub.Leave(w, req.ProjectID); err != nil {
			w.sendError(req.ProjectID, err.Error())
		}
	case model.PublishKind(req.Type):
		w.publish(&req)
	default:
		w.sendError(req.ProjectID, fmt.Sprintf("unknown message type %q", req.Type))
	}
}

func (w *WsHandler) publish(req *model.WsRequest) {
	if err := w.hub.Publish(w, req.ProjectID, req.Type, req.Payload); err != nil {
		w.sendError(req.ProjectID, err.Error())

		return
	}

	if req.Type == model.MsgStatusChange && w.project != nil {
		var p model.StatusPayload

		if err := json.Unmarshal(req.Payload, &p); err != nil || !model.ValidProjectStatus(p.Status) {
			w.sendError(req.ProjectID, "invalid status payload")

			return
		}

		if err := w.project.SetStatus(req.ProjectID, p.Status, w.user.Login); err != nil {
			w.log.Warn("status update failed", slog.Any("error", err))
			w.sendError(req.ProjectID, "status not persisted, retry")
		}
	}
}

func (w *WsHandler) sendError(projectID uint, msg string) {
	w.Send(&model.WsEvent{
		Type:      model.MsgError,
		ProjectID: projectID,
		Time:      time.Now(),
		Error:     msg,
	})
}

func (w *WsHandler) closehandler(code int, text string) error {
	w.log.Info(fmt.Sprintf("closed with code %d, msg %s", code, text))
	w.stop()

	return nil
}

// Listen runs the handler until the connection is gone, then unsubscribes
// it from every channel it joined.
func (w *WsHandler) Listen() {
	w.log.Debug("ws start")
	w.ws.SetCloseHandler(w.closehandler)

	go w.writer()
	w.reader()

	w.hub.Disconnect(w)
	w.log.Debug("ws stop")
}
