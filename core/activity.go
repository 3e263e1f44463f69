package core

import (
	"github.com/google/uuid"
)

// SenderType identifies who produced an activity.
type SenderType int

const (
	// SenderUser marks user input.
	SenderUser SenderType = iota
	// SenderBot marks a bot response.
	SenderBot
)

// ActivityTypeMessage is the only activity type produced by the runtime.
const ActivityTypeMessage = "message"

// ChannelAccount identifies a participant.
type ChannelAccount struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ChannelData carries replay coordinates of an activity.
type ChannelData struct {
	SenderType       SenderType `json:"senderType" yaml:"senderType"`
	RoundIndex       int        `json:"roundIndex" yaml:"roundIndex"`
	ScoreIndex       int        `json:"scoreIndex" yaml:"scoreIndex"`
	ClientActivityID string     `json:"clientActivityId,omitempty" yaml:"clientActivityId,omitempty"`
}

// Attachment is a rich payload such as a rendered card.
type Attachment struct {
	ContentType string `json:"contentType" yaml:"contentType"`
	Content     any    `json:"content" yaml:"content"`
}

// AdaptiveCardContentType is the content type of rendered card attachments.
const AdaptiveCardContentType = "application/vnd.microsoft.card.adaptive"

// Activity is a message exchanged with the conversation channel. After
// emission it should be treated as immutable.
type Activity struct {
	ID          string         `json:"id" yaml:"id"`
	Type        string         `json:"type" yaml:"type"`
	Text        string         `json:"text,omitempty" yaml:"text,omitempty"`
	From        ChannelAccount `json:"from" yaml:"from"`
	ChannelData *ChannelData   `json:"channelData,omitempty" yaml:"channelData,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty" yaml:"attachments,omitempty"`
}

// Response is what a bot action produces: plain text, a full activity, or
// nothing. Exactly one of Text or Activity is used when set.
type Response struct {
	Text     string
	Activity *Activity
}

// TextResponse wraps plain text.
func TextResponse(text string) *Response { return &Response{Text: text} }

// ToActivity converts a response into a message activity from the sender.
// It returns nil for an empty response.
func (r *Response) ToActivity(id string, from ChannelAccount) *Activity {
	if r == nil {
		return nil
	}
	if r.Activity != nil {
		a := *r.Activity
		a.ID = id
		a.From = from
		if a.Type == "" {
			a.Type = ActivityTypeMessage
		}
		return &a
	}
	if r.Text == "" {
		return nil
	}
	return &Activity{ID: id, Type: ActivityTypeMessage, Text: r.Text, From: from}
}

// NewID returns a new random UUID string.
func NewID() string { return uuid.NewString() }
