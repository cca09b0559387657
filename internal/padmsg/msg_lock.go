package padmsg

type LockFile struct {
	Path string `json:"pth" msgpack:"pth"`
	Kind string `json:"knd" msgpack:"knd"`
}

type UnlockFile struct {
	Path string `json:"pth" msgpack:"pth"`
}

// FileLocked is used both for granted locks and for denial replies.
type FileLocked struct {
	Path   string `json:"pth" msgpack:"pth"`
	Holder string `json:"hld" msgpack:"hld"`
	Kind   string `json:"knd" msgpack:"knd"`
}

func NewLockFile(path, kind string) *Message {
	return newMessage(MsgLockFile, &LockFile{Path: path, Kind: kind})
}

func NewUnlockFile(path string) *Message {
	return newMessage(MsgUnlockFile, &UnlockFile{Path: path})
}

func NewFileLocked(path, holder, kind string) *Message {
	return newMessage(MsgFileLocked, &FileLocked{Path: path, Holder: holder, Kind: kind})
}

func NewLockDenied(path, holder, kind string) *Message {
	return newMessage(MsgLockDenied, &FileLocked{Path: path, Holder: holder, Kind: kind})
}

func NewFileUnlocked(path string) *Message {
	return newMessage(MsgFileUnlocked, &FileEvent{Path: path})
}
