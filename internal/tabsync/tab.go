package tabsync

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Connector is the realtime channel a tab drives: opened with a credential,
// closed on logout or credential change.
type Connector interface {
	Connect(token string) error
	Disconnect()
}

// Tab keeps one browser-tab equivalent in sync with the shared credential
// slot. At any instant an open connection is authenticated with exactly the
// credential currently in the slot; changes observed from other tabs win
// over local state (last write wins, no merge).
type Tab struct {
	id     string
	logger *slog.Logger
	slot   Slot
	conn   Connector

	mx    sync.Mutex
	token string
}

func NewTab(slot Slot, conn Connector) *Tab {
	id := uuid.NewString()

	return &Tab{
		id:     id,
		logger: slog.Default().With("logger", "tab", "tab", id),
		slot:   slot,
		conn:   conn,
	}
}

func (t *Tab) ID() string {
	return t.id
}

func (t *Tab) Token() string {
	t.mx.Lock()
	defer t.mx.Unlock()

	return t.token
}

func (t *Tab) LoggedIn() bool {
	return t.Token() != ""
}

// Start subscribes to slot changes and picks up a session another tab may
// have already established.
func (t *Tab) Start() {
	t.slot.Subscribe(t.onChange)

	if token := t.slot.Load(); token != "" {
		t.onChange(token)
	}
}

func (t *Tab) Stop() {
	t.mx.Lock()
	defer t.mx.Unlock()

	if t.token != "" {
		t.conn.Disconnect()
		t.token = ""
	}

	t.slot.Close()
}

// Login stores the credential in the shared slot, propagating it to every
// other tab, and opens the realtime connection.
func (t *Tab) Login(token string) error {
	t.mx.Lock()
	defer t.mx.Unlock()

	if err := t.slot.Store(token); err != nil {
		return err
	}

	return t.connect(token)
}

// Logout clears the shared slot, which forces the other tabs out too, and
// closes the connection.
func (t *Tab) Logout() error {
	t.mx.Lock()
	defer t.mx.Unlock()

	if err := t.slot.Clear(); err != nil {
		return err
	}

	if t.token != "" {
		t.conn.Disconnect()
		t.token = ""
	}

	return nil
}

// onChange handles a slot change made by another tab.
func (t *Tab) onChange(token string) {
	t.mx.Lock()
	defer t.mx.Unlock()

	if token == t.token {
		return
	}

	if token == "" {
		// the other tab logged out
		if t.token != "" {
			t.logger.Info("forced logout")
			t.conn.Disconnect()
			t.token = ""
		}

		return
	}

	t.logger.Info("adopting new credential")

	_ = t.connect(token)
}

func (t *Tab) connect(token string) error {
	if t.token != "" {
		t.conn.Disconnect()
		t.token = ""
	}

	if err := t.conn.Connect(token); err != nil {
		t.logger.Warn("connect failed", slog.Any("error", err))

		return err
	}

	t.token = token

	return nil
}
