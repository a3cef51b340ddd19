package gateway

import "encoding/json"

// ProtocolVersion is the frame protocol revision spoken by this server.
const ProtocolVersion = 1

// Frame types.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Events pushed to connected clients.
const (
	EventChallenge        = "connect.challenge"
	EventCallIncoming     = "call.incoming"
	EventCallClosed       = "call.closed"
	EventToolsChanged     = "tools.changed"
	EventJoinProject      = "workspace.join_project"
	EventSettingsReloaded = "settings.reloaded"
)

// Events lists every event a client may receive after the handshake.
var Events = []string{
	EventCallIncoming,
	EventCallClosed,
	EventToolsChanged,
	EventJoinProject,
	EventSettingsReloaded,
}

// Error codes carried in ErrorShape.Code.
const (
	CodeProtocol       = "protocol_error"
	CodeInvalidParams  = "invalid_params"
	CodeUnauthorized   = "unauthorized"
	CodeMethodNotFound = "method_not_found"
	CodeNotFound       = "not_found"
	CodeUnavailable    = "unavailable"
	CodeInternal       = "internal_error"
)

// Frame is the envelope of every WebSocket message. Type selects which of
// the remaining fields are meaningful.
type Frame struct {
	Type string `json:"type"`

	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`

	Error *ErrorShape `json:"error,omitempty"`
}

// ErrorShape is the error body of a failed response.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ConnectParams is the payload of the client's connect request.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

// ClientInfo identifies a front-end.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version"`
	Platform    string `json:"platform,omitempty"`
}

// ConnectAuth carries credentials.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK answers a successful connect.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

// ServerInfo identifies this gateway and the connection.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features advertises methods and events.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy communicates limits to the client.
type ServerPolicy struct {
	MaxPayload int `json:"maxPayload"`
}

// NewRequest builds a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

// NewResponse builds a success response.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

// NewErrorResponse builds a failed response.
func NewErrorResponse(id string, e ErrorShape) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &e}
}

// NewEvent builds an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}
