package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/padsync/internal/hub"
	"github.com/openmined/padsync/internal/padmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextMessage(t *testing.T, s *hub.Session, timeout time.Duration) *padmsg.Message {
	t.Helper()
	select {
	case msg := <-s.MsgTx:
		return msg
	case <-time.After(timeout):
		return nil
	}
}

func TestServices_OwnSaveReachesOtherSessionsAsModified(t *testing.T) {
	svc := newTestServices(t, false)
	root := svc.Store.Root()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes", "a.md"), []byte("v1"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Shutdown(context.Background())
	go svc.Hub.Run(ctx, svc.Watcher.Events())

	writer := svc.Hub.Register(&hub.ClientInfo{IPAddr: "127.0.0.1"}, nil)
	reader := svc.Hub.Register(&hub.ClientInfo{IPAddr: "127.0.0.1"}, nil)
	for _, s := range []*hub.Session{writer, reader} {
		msg := nextMessage(t, s, time.Second)
		require.NotNil(t, msg)
		require.Equal(t, padmsg.MsgConnected, msg.Type)
	}

	_, err := svc.Store.WriteAs(writer.ID, "notes/a.md", []byte("v2"))
	require.NoError(t, err)

	msg := nextMessage(t, reader, 5*time.Second)
	require.NotNil(t, msg, "no change notification")
	assert.Equal(t, padmsg.MsgFileModified, msg.Type)
	assert.Equal(t, "notes/a.md", msg.Data.(*padmsg.FileEvent).Path)

	assert.Nil(t, nextMessage(t, writer, 300*time.Millisecond), "the writing session is not told about its own save")
}

func TestServices_SessionlessWriteReachesEveryone(t *testing.T) {
	svc := newTestServices(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(svc.Store.Root(), "b.md"), []byte("v1"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Shutdown(context.Background())
	go svc.Hub.Run(ctx, svc.Watcher.Events())

	s := svc.Hub.Register(nil, nil)
	require.NotNil(t, nextMessage(t, s, time.Second))

	_, err := svc.Store.Write("b.md", []byte("v2"))
	require.NoError(t, err)

	msg := nextMessage(t, s, 5*time.Second)
	require.NotNil(t, msg, "no change notification")
	assert.Equal(t, padmsg.MsgFileModified, msg.Type)
	assert.Equal(t, "b.md", msg.Data.(*padmsg.FileEvent).Path)
}
