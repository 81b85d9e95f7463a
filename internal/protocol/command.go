package protocol

import (
	"encoding/json"
	"fmt"
)

// Command is an outbound frame.
type Command struct {
	Type    CommandType
	Payload any
}

type JoinConversations struct {
	ConversationIDs []string `json:"conversationIds"`
}

type SendMessage struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// ConversationRef is the payload of mark_as_read, start_typing and stop_typing.
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

type ToggleVisibility struct {
	Visible bool `json:"visible"`
}

func Join(ids []string) Command {
	if ids == nil {
		ids = []string{}
	}
	return Command{Type: CmdJoinConversations, Payload: JoinConversations{ConversationIDs: ids}}
}

func Send(conversationID, content string) Command {
	return Command{Type: CmdSendMessage, Payload: SendMessage{ConversationID: conversationID, Content: content}}
}

func MarkAsRead(conversationID string) Command {
	return Command{Type: CmdMarkAsRead, Payload: ConversationRef{ConversationID: conversationID}}
}

func StartTyping(conversationID string) Command {
	return Command{Type: CmdStartTyping, Payload: ConversationRef{ConversationID: conversationID}}
}

func StopTyping(conversationID string) Command {
	return Command{Type: CmdStopTyping, Payload: ConversationRef{ConversationID: conversationID}}
}

func SetVisibility(visible bool) Command {
	return Command{Type: CmdToggleVisibility, Payload: ToggleVisibility{Visible: visible}}
}

// Encode returns the wire form of the command.
func (c Command) Encode() ([]byte, error) {
	data, err := json.Marshal(c.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", c.Type, err)
	}
	return json.Marshal(Envelope{Type: string(c.Type), Data: data})
}

// ParseCommand decodes an outbound frame. Test servers use it to inspect what
// a client sent.
func ParseCommand(data []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var payload any
	var err error
	switch CommandType(env.Type) {
	case CmdJoinConversations:
		payload, err = decode[JoinConversations](env.Data)
	case CmdSendMessage:
		payload, err = decode[SendMessage](env.Data)
	case CmdMarkAsRead, CmdStartTyping, CmdStopTyping:
		payload, err = decode[ConversationRef](env.Data)
	case CmdToggleVisibility:
		payload, err = decode[ToggleVisibility](env.Data)
	default:
		return Command{}, fmt.Errorf("%w: unknown command type %q", ErrMalformed, env.Type)
	}
	if err != nil {
		return Command{}, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return Command{Type: CommandType(env.Type), Payload: payload}, nil
}
