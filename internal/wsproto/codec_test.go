package wsproto

import (
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/openmined/padsync/internal/padmsg"
	"github.com/stretchr/testify/require"
)

func TestCodec_JSONRoundTrip(t *testing.T) {
	msg := padmsg.NewFileLocked("notes/a.md", "sess-a", "editor")

	typ, data, err := Marshal(msg, EncodingJSON)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)

	decoded, enc, err := Unmarshal(typ, data)
	require.NoError(t, err)
	require.Equal(t, EncodingJSON, enc)
	require.Equal(t, msg.Id, decoded.Id)

	fl, ok := decoded.Data.(*padmsg.FileLocked)
	require.True(t, ok)
	require.Equal(t, "notes/a.md", fl.Path)
	require.Equal(t, "sess-a", fl.Holder)
}

func TestCodec_MsgPackEnvelope(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := padmsg.NewFileOpened("daily/2024-05-01.md", "# hello", at)

	typ, data, err := Marshal(msg, EncodingMsgPack)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageBinary, typ)
	require.True(t, len(data) > 4)
	require.Equal(t, byte('P'), data[0])
	require.Equal(t, byte('S'), data[1])
	require.Equal(t, byte(1), data[2])
	require.Equal(t, byte(EncodingMsgPack), data[3])

	decoded, enc, err := Unmarshal(typ, data)
	require.NoError(t, err)
	require.Equal(t, EncodingMsgPack, enc)
	require.Equal(t, padmsg.MsgFileOpened, decoded.Type)

	fo, ok := decoded.Data.(*padmsg.FileOpened)
	require.True(t, ok)
	require.Equal(t, "# hello", fo.Content)
	require.True(t, at.Equal(fo.ModifiedAt))
}

func TestCodec_MsgPackEmptyPayload(t *testing.T) {
	typ, data, err := Marshal(padmsg.NewPing(), EncodingMsgPack)
	require.NoError(t, err)

	decoded, _, err := Unmarshal(typ, data)
	require.NoError(t, err)
	require.Equal(t, padmsg.MsgPing, decoded.Type)
}

func TestCodec_RejectsUnknownEnvelope(t *testing.T) {
	_, _, err := Unmarshal(websocket.MessageBinary, []byte{'X', 'Y', 1, 1, 0})
	require.Error(t, err)
}

func TestPreferredEncoding(t *testing.T) {
	require.Equal(t, EncodingMsgPack, PreferredEncoding("msgpack,json"))
	require.Equal(t, EncodingJSON, PreferredEncoding("json, msgpack"))
	require.Equal(t, EncodingJSON, PreferredEncoding(""))
	require.Equal(t, EncodingJSON, PreferredEncoding("xml"))
}
