// ABOUTME: Inbound message and attachment types crossing the chat gateway
package models

// Attachment is an opaque file reference forwarded alongside relayed text.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Inbound is a message arriving from the chat gateway. ChannelID is zero for
// direct messages.
type Inbound struct {
	AuthorID    int64        `json:"author_id"`
	ChannelID   int64        `json:"channel_id,omitempty"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}
