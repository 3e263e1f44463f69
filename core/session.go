package core

import "time"

// App is the trained model a conversation scope is bound to.
type App struct {
	AppID string `json:"appId" yaml:"appId"`
	Name  string `json:"appName,omitempty" yaml:"appName,omitempty"`
}

// SessionRecord is the persisted identity of the active session of a scope.
//
// OnEndSessionCalled guards the session-end collaborator: once it fired for
// a record it does not fire again until a new record replaces it.
type SessionRecord struct {
	SessionID          string    `json:"sessionId"`
	ConversationID     string    `json:"conversationId"`
	InTeach            bool      `json:"inTeach"`
	OrgSessionID       string    `json:"orgSessionId,omitempty"`
	OnEndSessionCalled bool      `json:"onEndSessionCalled"`
	LastActive         time.Time `json:"lastActive"`
}

// SessionInfo is the read-only view of a session handed to callbacks.
type SessionInfo struct {
	SessionID      string `json:"sessionId"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId,omitempty"`
	UserName       string `json:"userName,omitempty"`
}
