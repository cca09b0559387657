package wsproto

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/openmined/padsync/internal/padmsg"
	"github.com/vmihailenco/msgpack/v5"
)

// Encoding indicates which wire encoding is used for WebSocket messages.
type Encoding uint8

const (
	EncodingJSON Encoding = iota
	EncodingMsgPack
)

func (e Encoding) String() string {
	switch e {
	case EncodingMsgPack:
		return "msgpack"
	default:
		return "json"
	}
}

const (
	magic0  = byte('P')
	magic1  = byte('S')
	version = byte(1)
)

// PreferredEncoding parses a comma-separated preference list (e.g. "msgpack,json").
// Returns EncodingJSON if list is empty/unknown.
func PreferredEncoding(list string) Encoding {
	parts := strings.Split(list, ",")
	for _, p := range parts {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "msgpack":
			return EncodingMsgPack
		case "json":
			return EncodingJSON
		}
	}
	return EncodingJSON
}

// Marshal encodes a padmsg.Message for WebSocket transport.
// JSON uses TextMessage frames without an envelope.
// MsgPack uses BinaryMessage with an envelope: [magic][version][encoding][payload].
func Marshal(msg *padmsg.Message, enc Encoding) (websocket.MessageType, []byte, error) {
	if enc == EncodingJSON {
		data, err := json.Marshal(msg)
		return websocket.MessageText, data, err
	}

	payload, err := marshalMsgpack(msg)
	if err != nil {
		return websocket.MessageBinary, nil, err
	}

	buf := make([]byte, 4+len(payload))
	buf[0], buf[1], buf[2], buf[3] = magic0, magic1, version, byte(enc)
	copy(buf[4:], payload)
	return websocket.MessageBinary, buf, nil
}

// Unmarshal decodes a WebSocket frame into padmsg.Message.
func Unmarshal(typ websocket.MessageType, data []byte) (*padmsg.Message, Encoding, error) {
	switch typ {
	case websocket.MessageText:
		var msg padmsg.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, EncodingJSON, err
		}
		return &msg, EncodingJSON, nil

	case websocket.MessageBinary:
		if len(data) < 4 || data[0] != magic0 || data[1] != magic1 {
			return nil, EncodingMsgPack, errors.New("binary message missing PS envelope")
		}
		if data[2] != version {
			return nil, EncodingMsgPack, fmt.Errorf("unsupported ws envelope version: %d", data[2])
		}
		enc := Encoding(data[3])
		payload := data[4:]
		switch enc {
		case EncodingMsgPack:
			msg, err := unmarshalMsgpack(payload)
			return msg, enc, err
		case EncodingJSON:
			var msg padmsg.Message
			if err := json.Unmarshal(payload, &msg); err != nil {
				return nil, enc, err
			}
			return &msg, enc, nil
		default:
			return nil, enc, fmt.Errorf("unknown ws encoding: %d", enc)
		}

	default:
		return nil, EncodingJSON, fmt.Errorf("unsupported websocket message type: %v", typ)
	}
}

type wireMessage struct {
	Id   string             `msgpack:"id"`
	Type padmsg.MessageType `msgpack:"typ"`
	Data []byte             `msgpack:"dat"`
}

func marshalMsgpack(msg *padmsg.Message) ([]byte, error) {
	if _, err := padmsg.NewPayload(msg.Type); err != nil {
		return nil, err
	}

	var dat []byte
	if msg.Data != nil {
		var err error
		if dat, err = msgpack.Marshal(msg.Data); err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", msg.Type, err)
		}
	}

	w := wireMessage{Id: msg.Id, Type: msg.Type, Data: dat}
	return msgpack.Marshal(&w)
}

func unmarshalMsgpack(payload []byte) (*padmsg.Message, error) {
	var w wireMessage
	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	dec.SetCustomStructTag("msgpack")
	if err := dec.Decode(&w); err != nil {
		return nil, err
	}

	data, err := padmsg.NewPayload(w.Type)
	if err != nil {
		return nil, err
	}
	if len(w.Data) > 0 {
		if err := msgpack.Unmarshal(w.Data, data); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", w.Type, err)
		}
	}

	return &padmsg.Message{Id: w.Id, Type: w.Type, Data: data}, nil
}
