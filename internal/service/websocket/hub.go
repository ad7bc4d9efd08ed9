// Package websocket pushes job progress snapshots to subscribed viewers.
package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"videocounter/internal/config"
	"videocounter/internal/logger"
	"videocounter/internal/model"
)

const (
	// SendBuffer is how many snapshots may wait for a viewer before older ones are skipped.
	SendBuffer = 64
	writeWait  = 10 * time.Second
)

// ErrHubClosed is returned by Subscribe once the hub stopped.
var ErrHubClosed = errors.New("progress hub stopped")

// client is one viewer subscribed to one job. Its fields other than conn and
// send are only touched by the Run loop.
type client struct {
	jobID       string
	conn        *websocket.Conn
	send        chan model.Job
	lastVersion uint64
	closed      bool
}

type subscription struct {
	client  *client
	current func() (model.Job, error)
	result  chan error
}

// HubService fans job snapshots out to the viewers of each job. Snapshots reach
// a viewer in strictly increasing Version order and nothing follows the terminal
// snapshot; the viewer connection is closed after it.
type HubService struct {
	clients    map[string]map[*websocket.Conn]*client
	publish    chan model.Job
	register   chan subscription
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHubService(config *config.Config, logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[string]map[*websocket.Conn]*client),
		publish:    make(chan model.Job),
		register:   make(chan subscription),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes subscriptions and snapshots until ctx is cancelled.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for jobID, viewers := range h.clients {
				for _, c := range viewers {
					h.closeClient(c)
				}
				delete(h.clients, jobID)
			}
			h.mutex.Unlock()
			return

		case sub := <-h.register:
			sub.result <- h.add(sub)

		case conn := <-h.unregister:
			h.mutex.Lock()
			for jobID, viewers := range h.clients {
				if c, ok := viewers[conn]; ok {
					h.remove(jobID, conn)
					h.closeClient(c)
				}
			}
			h.mutex.Unlock()

		case snapshot := <-h.publish:
			h.mutex.Lock()
			for conn, c := range h.clients[snapshot.ID] {
				if !h.deliver(c, snapshot) {
					h.remove(snapshot.ID, conn)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// add registers a viewer and hands it the current snapshot first.
func (h *HubService) add(sub subscription) error {
	snapshot, err := sub.current()
	if err != nil {
		return err
	}

	c := sub.client
	go h.writePump(c)

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if !h.deliver(c, snapshot) {
		return nil
	}
	if h.clients[c.jobID] == nil {
		h.clients[c.jobID] = make(map[*websocket.Conn]*client)
	}
	h.clients[c.jobID][c.conn] = c
	h.logger.Info("Viewer subscribed to job %s. Total: %d", c.jobID, len(h.clients[c.jobID]))
	return nil
}

// deliver queues a snapshot for one viewer and reports whether the viewer stays
// subscribed. A viewer that fell behind skips its oldest queued snapshot, so the
// latest state and the terminal snapshot always get through.
func (h *HubService) deliver(c *client, snapshot model.Job) bool {
	if c.closed {
		return false
	}
	if snapshot.Version <= c.lastVersion {
		return true
	}
	for queued := false; !queued; {
		select {
		case c.send <- snapshot:
			queued = true
		default:
			select {
			case <-c.send:
			default:
			}
		}
	}
	c.lastVersion = snapshot.Version
	if snapshot.Status.Terminal() {
		h.closeClient(c)
		return false
	}
	return true
}

func (h *HubService) remove(jobID string, conn *websocket.Conn) {
	delete(h.clients[jobID], conn)
	if len(h.clients[jobID]) == 0 {
		delete(h.clients, jobID)
	}
}

func (h *HubService) closeClient(c *client) {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump writes queued snapshots and closes the connection once the queue
// is closed.
func (h *HubService) writePump(c *client) {
	defer c.conn.Close()
	for snapshot := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(snapshot); err != nil {
			h.logger.Error("Error sending snapshot of job %s: %v", c.jobID, err)
			// wait for the hub to close the queue
			for range c.send {
			}
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}

// Subscribe registers conn as a viewer of jobID. current is called from the hub
// loop to obtain the first snapshot; its error is returned and conn is not
// registered. After a nil return the hub owns writes to conn.
func (h *HubService) Subscribe(jobID string, conn *websocket.Conn, current func() (model.Job, error)) error {
	sub := subscription{
		client: &client{
			jobID: jobID,
			conn:  conn,
			send:  make(chan model.Job, SendBuffer),
		},
		current: current,
		result:  make(chan error, 1),
	}
	select {
	case h.register <- sub:
	case <-h.done:
		return ErrHubClosed
	}
	return <-sub.result
}

// Unsubscribe removes a viewer; unknown connections are ignored.
func (h *HubService) Unsubscribe(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish fans a snapshot out to the job's viewers.
func (h *HubService) Publish(snapshot model.Job) {
	select {
	case h.publish <- snapshot.Clone():
	case <-h.done:
	}
}

// GetClientCount returns how many viewers follow a job.
func (h *HubService) GetClientCount(jobID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients[jobID])
}
