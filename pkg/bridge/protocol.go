// ABOUTME: JSON message types spoken on the bridge websocket
// ABOUTME: Requests name one of the six session operations, replies carry the result
package bridge

import (
	"fmt"

	"github.com/miniaud/minitester/pkg/session"
)

// ControlPath is where the bridge accepts websocket connections
const ControlPath = "/control"

// Message types sent by the server
const (
	TypeHello  = "server/hello"
	TypeResult = "session/result"
	TypeState  = "session/state"
)

// Op names a session operation
type Op string

const (
	OpPlay         Op = "play"
	OpPause        Op = "pause"
	OpUninitialize Op = "uninitialize"
	OpHasError     Op = "hasError"
	OpGetError     Op = "getError"
	OpDeleteState  Op = "deleteState"
)

// Ops lists every operation the bridge accepts
var Ops = []Op{OpPlay, OpPause, OpUninitialize, OpHasError, OpGetError, OpDeleteState}

// ParseOp validates an operation name
func ParseOp(s string) (Op, error) {
	for _, op := range Ops {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown op %q", s)
}

// Request is one operation sent by a host
type Request struct {
	ID      string          `json:"id"`
	Op      Op              `json:"op"`
	Handle  session.Handle  `json:"handle"`
	Backend session.Backend `json:"backend"`
}

// Result answers a Request. Handle is the value the host must keep.
type Result struct {
	Type     string         `json:"type"`
	ID       string         `json:"id"`
	Handle   session.Handle `json:"handle"`
	HasError bool           `json:"hasError"`
	Error    string         `json:"error"`
	State    string         `json:"state"`
}

// Hello is the first message on every connection
type Hello struct {
	Type         string `json:"type"`
	ServerID     string `json:"serverId"`
	ConnectionID string `json:"connectionId"`
	Name         string `json:"name"`
	Version      string `json:"version"`
}

// StateEvent carries a session state change to every connection
type StateEvent struct {
	Type  string               `json:"type"`
	Event session.StateChanged `json:"event"`
}

// envelope peeks at the type of an incoming server message
type envelope struct {
	Type string `json:"type"`
}
