package session

import (
	"encoding/json"

	"collabcore/internal/model"
)

// Inbound frame types, the fixed wire contract.
const (
	TypeOperation   = "operation"
	TypeHeartbeat   = "heartbeat"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"

	// Outbound-only frame types.
	TypeConnection   = "connection"
	TypeNotification = "notification"
)

// InboundMessage is the generic envelope every inbound frame is parsed
// into before type-specific payload decoding.
type InboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// OperationPayload is an "operation" frame's payload.
type OperationPayload struct {
	DocumentID string          `json:"documentId"`
	Operation  model.Operation `json:"operation"`
	Version    int             `json:"version"`
}

// SubscriptionPayload is a "subscribe"/"unsubscribe" frame's payload.
type SubscriptionPayload struct {
	DocumentID string `json:"documentId"`
}

// ConnectionMessage is sent once, immediately after a session is
// registered.
type ConnectionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

// BroadcastMessage is fanned out to every subscribed session except the
// one named by ExcludeSessionID (if any).
type BroadcastMessage struct {
	Type             string      `json:"type"`
	DocumentID       string      `json:"documentId"`
	Data             interface{} `json:"data"`
	ExcludeSessionID string      `json:"excludeSessionId,omitempty"`
	Timestamp        int64       `json:"timestamp"`
}

// HeartbeatMessage is pushed to a connection on each heartbeat tick.
type HeartbeatMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// Document-lifecycle frame types, outside the core operation/subscribe
// wire schema but carried by the corpus's conn.go. They fold into the
// same InboundMessage envelope.
const (
	TypeCreateDocument      = "createDocument"
	TypeJoinDocument        = "joinDocument"
	TypeSaveDocument        = "saveDocument"
	TypeLoadDocumentContent = "loadDocumentContent"
)

// CreateDocumentPayload is a "createDocument" frame's payload.
type CreateDocumentPayload struct {
	Title string `json:"title"`
}

// JoinDocumentPayload is a "joinDocument" frame's payload: either a
// human title (resolved via the optional DocumentResolver) or a
// documentId directly.
type JoinDocumentPayload struct {
	Title      string `json:"title,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
}

// DocumentPayload is shared by "saveDocument" and
// "loadDocumentContent" frames.
type DocumentPayload struct {
	DocumentID string `json:"documentId"`
}

// ResultMessage is the thin reply for the supplemented document
// lifecycle messages (createDocument/joinDocument/saveDocument/
// loadDocumentContent).
type ResultMessage struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentId,omitempty"`
	Content    string `json:"content,omitempty"`
	Version    int    `json:"version,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}
