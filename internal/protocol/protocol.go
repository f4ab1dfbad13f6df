// Package protocol defines the JSON frames exchanged over the collaboration
// websocket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gogotex/gogotex/backend/collab-service/internal/models"
)

// Frame types.
const (
	// client -> server
	TypeJoin   = "join"
	TypeLeave  = "leave"
	TypeEdit   = "edit"
	TypeCursor = "cursor"
	TypeRevert = "revert"

	// server -> client (TypeEdit and TypeCursor are reused)
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	TypePresence   = "presence"
	TypeReverted   = "reverted"
	TypeSaved      = "saved"
	TypeError      = "error"
)

// Error codes carried by TypeError frames.
const (
	CodeNotFound     = "not_found"
	CodeAccessDenied = "access_denied"
	CodePersistence  = "persistence"
	CodeBadRequest   = "bad_request"
	CodeRateLimited  = "rate_limited"
)

var ErrBadFrame = errors.New("bad frame")

// Frame is the single envelope for every message. Fields not used by a type
// are omitted on the wire.
type Frame struct {
	Type       string            `json:"type"`
	DocumentID string            `json:"documentId,omitempty"`
	Content    *string           `json:"content,omitempty"`
	Position   json.RawMessage   `json:"position,omitempty"`
	Version    int               `json:"version,omitempty"`
	User       *models.Identity  `json:"user,omitempty"`
	SessionID  string            `json:"sessionId,omitempty"`
	Users      []models.Identity `json:"users,omitempty"`
	Code       string            `json:"code,omitempty"`
	Message    string            `json:"message,omitempty"`
}

// Text returns the content, or "" when absent.
func (f Frame) Text() string {
	if f.Content == nil {
		return ""
	}
	return *f.Content
}

// Decode parses and validates a client frame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	switch f.Type {
	case TypeJoin, TypeLeave:
	case TypeEdit:
		if f.Content == nil {
			return f, fmt.Errorf("%w: edit without content", ErrBadFrame)
		}
	case TypeCursor:
		if len(f.Position) == 0 {
			return f, fmt.Errorf("%w: cursor without position", ErrBadFrame)
		}
	case TypeRevert:
		if f.Version < 1 {
			return f, fmt.Errorf("%w: version must be >= 1", ErrBadFrame)
		}
	case "":
		return f, fmt.Errorf("%w: missing type", ErrBadFrame)
	default:
		return f, fmt.Errorf("%w: unknown type %q", ErrBadFrame, f.Type)
	}
	if f.DocumentID == "" {
		return f, fmt.Errorf("%w: missing documentId", ErrBadFrame)
	}
	return f, nil
}

// Encode marshals f. Frames are plain structs, so marshalling cannot fail.
func Encode(f Frame) []byte {
	b, _ := json.Marshal(f)
	return b
}

func Edit(docID, content string) Frame {
	return Frame{Type: TypeEdit, DocumentID: docID, Content: &content}
}

func Cursor(docID string, position json.RawMessage, user models.Identity, sessionID string) Frame {
	return Frame{Type: TypeCursor, DocumentID: docID, Position: position, User: &user, SessionID: sessionID}
}

func UserJoined(docID string, user models.Identity, sessionID string) Frame {
	return Frame{Type: TypeUserJoined, DocumentID: docID, User: &user, SessionID: sessionID}
}

func UserLeft(docID string, user models.Identity, sessionID string) Frame {
	return Frame{Type: TypeUserLeft, DocumentID: docID, User: &user, SessionID: sessionID}
}

// Presence lists the users already in the room; it never carries content.
// An empty room omits the users field.
func Presence(docID string, users []models.Identity) Frame {
	return Frame{Type: TypePresence, DocumentID: docID, Users: users}
}

func Reverted(docID string, version int, content string) Frame {
	return Frame{Type: TypeReverted, DocumentID: docID, Version: version, Content: &content}
}

func Saved(docID string, version int) Frame {
	return Frame{Type: TypeSaved, DocumentID: docID, Version: version}
}

func Error(docID, code, message string) Frame {
	return Frame{Type: TypeError, DocumentID: docID, Code: code, Message: message}
}
