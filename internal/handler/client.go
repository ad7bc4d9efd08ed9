package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"videocounter/internal/logger"
	"videocounter/internal/model"
	"videocounter/internal/service/job"
	ws "videocounter/internal/service/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// JobWebsocketHandler streams the snapshots of one job to a viewer. The viewer
// gets the current snapshot first; the hub closes the connection after the
// terminal one.
func JobWebsocketHandler(orch *job.Orchestrator, hub *ws.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := httprouter.ParamsFromContext(r.Context()).ByName("job_id")

		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		current := func() (model.Job, error) { return orch.Status(jobID) }
		if err := hub.Subscribe(jobID, connection, current); err != nil {
			logger.Warning("Viewer rejected for job %s: %v", jobID, err)
			connection.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
			connection.Close()
			return
		}
		defer hub.Unsubscribe(connection)

		logger.Info("Viewer connected to job %s", jobID)

		for {
			_, _, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Viewer of job %s disconnected normally", jobID)
				} else {
					logger.Info("Viewer of job %s disconnected: %v", jobID, err)
				}
				break
			}
		}
	}
}
