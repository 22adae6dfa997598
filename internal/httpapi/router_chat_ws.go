package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/setupdesk/setup-desk/internal/workflow"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsIdleTimeout  = 5 * time.Minute
)

type chatMessage struct {
	Text string `json:"text"`
}

// handleChatWS runs an interactive request session over one websocket
// connection. Each inbound message is a full request; each reply is the
// workflow outcome for it.
func (r *router) handleChatWS(w http.ResponseWriter, req *http.Request) {
	user, err := r.authenticate(req)
	if err != nil {
		r.writeAuthFailure(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.deps.Logger.Warn("websocket upgrade failed", "error", err, "employee_id", user.EmployeeID)
		return
	}
	defer conn.Close()

	r.deps.Logger.Info("chat session started", "employee_id", user.EmployeeID)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))

		var message chatMessage
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.deps.Logger.Warn("chat session read failed", "error", err, "employee_id", user.EmployeeID)
			}
			return
		}

		var outcome workflow.Outcome
		if strings.TrimSpace(message.Text) == "" {
			outcome = workflow.Outcome{Type: workflow.OutcomeQAError, Message: "text is required"}
		} else {
			outcome = r.deps.Workflow.ProcessRequest(req.Context(), user, message.Text)
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(outcome); err != nil {
			r.deps.Logger.Warn("chat session write failed", "error", err, "employee_id", user.EmployeeID)
			return
		}
	}
}
