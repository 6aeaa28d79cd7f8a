package statusservice

import (
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// WsConn is the part of a websocket connection the keeper needs
type WsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	WriteJSON(v interface{}) error
}

// WSConnKeeper tracks subscriber connections by project ID.
// A client subscribes by sending the project ID as a text message.
type WSConnKeeper struct {
	lock       sync.Mutex
	byProject  map[string]map[WsConn]struct{}
	projectOf  map[WsConn]string
	maxConnDur time.Duration
}

// NewWSConnKeeper creates the connection keeper
func NewWSConnKeeper() *WSConnKeeper {
	return &WSConnKeeper{
		byProject: make(map[string]map[WsConn]struct{}),
		projectOf: make(map[WsConn]string),
		// drop idle subscribers eventually
		maxConnDur: time.Minute * 30,
	}
}

// HandleConnection serves one websocket connection until it closes or times out.
// Every non-empty message resubscribes the connection to the sent project ID.
func (kp *WSConnKeeper) HandleConnection(conn WsConn) error {
	defer kp.unsubscribe(conn)
	defer conn.Close()
	idCh := make(chan string)
	go func() {
		defer close(idCh)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				goapp.Log.Debug().Err(err).Msg("ws read done")
				return
			}
			id := strings.TrimSpace(string(msg))
			goapp.Log.Debug().Str("ID", goapp.Sanitize(id)).Msg("ws msg")
			if id != "" {
				idCh <- id
			}
		}
	}()

	deadline := time.After(kp.maxConnDur)
	for {
		select {
		case <-deadline:
			goapp.Log.Debug().Msg("ws conn timeout")
			return nil
		case id, ok := <-idCh:
			if !ok {
				return nil
			}
			kp.subscribe(conn, id)
			deadline = time.After(kp.maxConnDur)
		}
	}
}

func (kp *WSConnKeeper) subscribe(conn WsConn, id string) {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	kp.dropNoSync(conn)
	kp.projectOf[conn] = id
	conns, ok := kp.byProject[id]
	if !ok {
		conns = map[WsConn]struct{}{}
		kp.byProject[id] = conns
	}
	conns[conn] = struct{}{}
	goapp.Log.Info().Str("ID", id).Int("active", len(kp.projectOf)).Msg("ws subscribed")
}

func (kp *WSConnKeeper) unsubscribe(conn WsConn) {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	kp.dropNoSync(conn)
	goapp.Log.Info().Int("active", len(kp.projectOf)).Msg("ws closed")
}

func (kp *WSConnKeeper) dropNoSync(conn WsConn) {
	if id, ok := kp.projectOf[conn]; ok {
		if conns, ok := kp.byProject[id]; ok {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(kp.byProject, id)
			}
		}
	}
	delete(kp.projectOf, conn)
}

// GetConnections returns subscriber connections for a project
func (kp *WSConnKeeper) GetConnections(id string) ([]WsConn, bool) {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	conns, ok := kp.byProject[id]
	if !ok {
		return nil, false
	}
	res := make([]WsConn, 0, len(conns))
	for c := range conns {
		res = append(res, c)
	}
	return res, true
}
