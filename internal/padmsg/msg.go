package padmsg

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
)

// Message is the envelope exchanged over the session socket.
type Message struct {
	Id   string      `json:"id"`
	Type MessageType `json:"typ"`
	Data any         `json:"dat"`
}

// UnmarshalJSON implements the json.Unmarshaler interface for Message
func (m *Message) UnmarshalJSON(data []byte) error {
	type tempMessage struct {
		Id   string          `json:"id"`
		Type MessageType     `json:"typ"`
		Data json.RawMessage `json:"dat"`
	}

	var temp tempMessage
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	m.Id = temp.Id
	m.Type = temp.Type

	payload, err := NewPayload(m.Type)
	if err != nil {
		return err
	}

	if len(temp.Data) > 0 && string(temp.Data) != "null" {
		if err := json.Unmarshal(temp.Data, payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", m.Type, err)
		}
	}
	m.Data = payload

	return nil
}

func (m *Message) String() string {
	return fmt.Sprintf("%s(%s)", m.Type, m.Id)
}

func newMessage(typ MessageType, data any) *Message {
	return &Message{
		Id:   generateID(),
		Type: typ,
		Data: data,
	}
}

func generateID() string {
	return ulid.Make().String()
}
