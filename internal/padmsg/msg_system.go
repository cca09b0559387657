package padmsg

type Empty struct{}

type Connected struct {
	SessionID string `json:"sid" msgpack:"sid"`
	Version   string `json:"ver" msgpack:"ver"`
}

type Error struct {
	Code    int    `json:"cod" msgpack:"cod"`
	Path    string `json:"pth" msgpack:"pth"`
	Message string `json:"msg" msgpack:"msg"`
}

func NewConnected(sessionID, version string) *Message {
	return newMessage(MsgConnected, &Connected{SessionID: sessionID, Version: version})
}

func NewError(code int, path string, msg string) *Message {
	return newMessage(MsgError, &Error{Code: code, Path: path, Message: msg})
}

func NewPing() *Message {
	return newMessage(MsgPing, &Empty{})
}

func NewPong() *Message {
	return newMessage(MsgPong, &Empty{})
}
