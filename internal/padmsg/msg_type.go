package padmsg

import "fmt"

type MessageType string

// client -> server
const (
	MsgLockFile   MessageType = "lock_file"
	MsgUnlockFile MessageType = "unlock_file"
	MsgOpenFile   MessageType = "open_file"
	MsgEditFile   MessageType = "edit_file"
	MsgFlushFile  MessageType = "flush_file"
	MsgCloseFile  MessageType = "close_file"
	MsgPong       MessageType = "pong"
)

// server -> client
const (
	MsgConnected    MessageType = "connected"
	MsgFileLocked   MessageType = "file_locked"
	MsgLockDenied   MessageType = "lock_denied"
	MsgFileUnlocked MessageType = "file_unlocked"
	MsgFileModified MessageType = "file_modified"
	MsgFileCreated  MessageType = "file_created"
	MsgFileDeleted  MessageType = "file_deleted"
	MsgFileRenamed  MessageType = "file_renamed"
	MsgConflict     MessageType = "conflict"
	MsgFileOpened   MessageType = "file_opened"
	MsgSaveStatus   MessageType = "save_status"
	MsgError        MessageType = "error"
	MsgPing         MessageType = "ping"
)

// NewPayload returns a pointer to a zero payload for the given message type.
func NewPayload(t MessageType) (any, error) {
	switch t {
	case MsgLockFile:
		return &LockFile{}, nil
	case MsgUnlockFile:
		return &UnlockFile{}, nil
	case MsgOpenFile:
		return &OpenFile{}, nil
	case MsgEditFile:
		return &EditFile{}, nil
	case MsgFlushFile, MsgCloseFile, MsgPong, MsgPing:
		return &Empty{}, nil
	case MsgConnected:
		return &Connected{}, nil
	case MsgFileLocked, MsgLockDenied:
		return &FileLocked{}, nil
	case MsgFileUnlocked, MsgFileModified, MsgFileCreated, MsgFileDeleted:
		return &FileEvent{}, nil
	case MsgFileRenamed:
		return &FileRenamed{}, nil
	case MsgConflict:
		return &Conflict{}, nil
	case MsgFileOpened:
		return &FileOpened{}, nil
	case MsgSaveStatus:
		return &SaveStatus{}, nil
	case MsgError:
		return &Error{}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %q", string(t))
	}
}

// IsInbound reports whether clients are allowed to send this type.
func (t MessageType) IsInbound() bool {
	switch t {
	case MsgLockFile, MsgUnlockFile, MsgOpenFile, MsgEditFile, MsgFlushFile, MsgCloseFile, MsgPong:
		return true
	default:
		return false
	}
}
