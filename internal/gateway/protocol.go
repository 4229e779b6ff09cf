package gateway

import (
	"encoding/json"

	"github.com/soyeahso/roster/internal/remote"
)

// Frame types for the WebSocket protocol.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Frame is the base envelope for all WebSocket messages.
// The Type field discriminates between request, response, and event frames.
type Frame struct {
	Type string `json:"type"`

	// Request fields
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// Response fields
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Event fields
	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`

	// Error (response only)
	Error *ErrorShape `json:"error,omitempty"`
}

// ErrorShape is the standard error format in response frames.
type ErrorShape struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Error codes carried in ErrorShape.
const (
	CodeInvalidParams  = "invalid_params"
	CodeNotFound       = "not_found"
	CodeMethodNotFound = "method_not_found"
	CodeUnauthorized   = "unauthorized"
	CodeForbidden      = "forbidden"
	CodeProtocol       = "protocol_error"
	CodeUnavailable    = "unavailable"
	CodeInternal       = "internal"
)

// ConnectParams are sent by the client in the initial "connect" request.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
	Mode        string `json:"mode"` // "cli" | "server"
	InstanceID  string `json:"instanceId,omitempty"`
}

// ConnectAuth carries credentials in the connect request.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK is the server's response payload after successful authentication.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

// ServerInfo identifies the gateway server.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Host    string `json:"host,omitempty"`
	ConnID  string `json:"connId"`
}

// Features advertises available RPC methods and events.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy communicates protocol limits to the client.
type ServerPolicy struct {
	MaxPayload     int `json:"maxPayload"`
	TickIntervalMs int `json:"tickIntervalMs"`
}

// NewRequest creates a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:   FrameTypeRequest,
		ID:     id,
		Method: method,
		Params: raw,
	}, nil
}

// NewResponse creates a success response frame.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		OK:      &ok,
		Payload: raw,
	}, nil
}

// NewErrorResponse creates an error response frame.
func NewErrorResponse(id string, errShape ErrorShape) Frame {
	ok := false
	return Frame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    &ok,
		Error: &errShape,
	}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		Payload: raw,
		Seq:     seq,
	}, nil
}

// Protocol version supported by this server.
const ProtocolVersion = 1

// RPC method names.
const (
	MethodConnect             = "connect"
	MethodHealth              = "health"
	MethodDocGet              = "doc.get"
	MethodDocSet              = "doc.set"
	MethodDocBatch            = "doc.batch"
	MethodDocSubscribe        = "doc.subscribe"
	MethodCollectionSubscribe = "collection.subscribe"
	MethodSubscriptionCancel  = "subscription.cancel"
	MethodConfigGet           = "config.get"
	MethodConfigSet           = "config.set"
)

// Event names.
const (
	EventConnectChallenge   = "connect.challenge"
	EventDocSnapshot        = "doc.snapshot"
	EventCollectionSnapshot = "collection.snapshot"
	EventSubscriptionClosed = "subscription.closed"
)

// DocParams addresses one document.
type DocParams struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// DocResult answers doc.get.
type DocResult struct {
	Doc    remote.Document `json:"doc"`
	Exists bool            `json:"exists"`
}

// SetDocParams are the params of doc.set.
type SetDocParams struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Fields     map[string]any `json:"fields"`
	Merge      bool           `json:"merge,omitempty"`
}

// BatchParams are the params of doc.batch.
type BatchParams struct {
	Collection string         `json:"collection"`
	Writes     []remote.Write `json:"writes"`
}

// SubscribeParams are the params of doc.subscribe and collection.subscribe.
// The client may choose the subscription id so that it can route snapshot
// events that arrive before the response; ID is ignored for collections.
type SubscribeParams struct {
	SubscriptionID string `json:"subscriptionId,omitempty"`
	Collection     string `json:"collection"`
	ID             string `json:"id,omitempty"`
}

// SubscribeResult answers a subscribe request.
type SubscribeResult struct {
	SubscriptionID string `json:"subscriptionId"`
}

// CancelParams are the params of subscription.cancel.
type CancelParams struct {
	SubscriptionID string `json:"subscriptionId"`
}

// DocSnapshotEvent is the payload of a doc.snapshot event.
type DocSnapshotEvent struct {
	SubscriptionID string          `json:"subscriptionId"`
	Collection     string          `json:"collection"`
	Doc            remote.Document `json:"doc"`
	Exists         bool            `json:"exists"`
}

// CollectionSnapshotEvent is the payload of a collection.snapshot event.
type CollectionSnapshotEvent struct {
	SubscriptionID string            `json:"subscriptionId"`
	Collection     string            `json:"collection"`
	Docs           []remote.Document `json:"docs"`
}

// SubscriptionClosedEvent tells the client the server ended a subscription.
type SubscriptionClosedEvent struct {
	SubscriptionID string `json:"subscriptionId"`
	Reason         string `json:"reason,omitempty"`
}
