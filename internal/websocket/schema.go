package websocket

import (
	"github.com/stemsi/exstem-examcore/internal/model"
	"github.com/stemsi/exstem-examcore/internal/response"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing   Action = "ping"
	ActionState  Action = "state"
	ActionSubmit Action = "submit"
)

// Request is a client message. Answers is only read for ActionSubmit and
// uses the same shape as the HTTP submit body.
type Request struct {
	Action  Action                  `json:"action"`
	Answers []model.SubmittedAnswer `json:"answers,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventPong   Event = "pong"
	EventState  Event = "state"
	EventGraded Event = "graded"
)

type ErrorResponse struct {
	Event Event               `json:"event"`
	Error *response.ErrorBody `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

type StateResponse struct {
	Event Event               `json:"event"`
	State *model.AttemptState `json:"state"`
}

type GradedResponse struct {
	Event  Event         `json:"event"`
	Result *model.Result `json:"result"`
}
