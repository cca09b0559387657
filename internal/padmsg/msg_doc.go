package padmsg

import "time"

type OpenFile struct {
	Path string `json:"pth" msgpack:"pth"`
}

type EditFile struct {
	Path    string `json:"pth" msgpack:"pth"`
	Content string `json:"con" msgpack:"con"`
}

type FileOpened struct {
	Path       string    `json:"pth" msgpack:"pth"`
	Content    string    `json:"con" msgpack:"con"`
	ModifiedAt time.Time `json:"mod" msgpack:"mod"`
}

type SaveStatus struct {
	Path    string    `json:"pth" msgpack:"pth"`
	State   string    `json:"sta" msgpack:"sta"`
	Error   string    `json:"err,omitempty" msgpack:"err,omitempty"`
	SavedAt time.Time `json:"at,omitempty" msgpack:"at,omitempty"`
}

func NewOpenFile(path string) *Message {
	return newMessage(MsgOpenFile, &OpenFile{Path: path})
}

func NewEditFile(path, content string) *Message {
	return newMessage(MsgEditFile, &EditFile{Path: path, Content: content})
}

func NewFlushFile() *Message {
	return newMessage(MsgFlushFile, &Empty{})
}

func NewCloseFile() *Message {
	return newMessage(MsgCloseFile, &Empty{})
}

func NewFileOpened(path, content string, modifiedAt time.Time) *Message {
	return newMessage(MsgFileOpened, &FileOpened{Path: path, Content: content, ModifiedAt: modifiedAt})
}

func NewSaveStatus(status SaveStatus) *Message {
	return newMessage(MsgSaveStatus, &status)
}
