package padmsg

type FileEvent struct {
	Path string `json:"pth" msgpack:"pth"`
}

type FileRenamed struct {
	From string `json:"frm" msgpack:"frm"`
	To   string `json:"to" msgpack:"to"`
}

type Conflict struct {
	Files []string `json:"fls" msgpack:"fls"`
}

func NewFileModified(path string) *Message {
	return newMessage(MsgFileModified, &FileEvent{Path: path})
}

func NewFileCreated(path string) *Message {
	return newMessage(MsgFileCreated, &FileEvent{Path: path})
}

func NewFileDeleted(path string) *Message {
	return newMessage(MsgFileDeleted, &FileEvent{Path: path})
}

func NewFileRenamed(from, to string) *Message {
	return newMessage(MsgFileRenamed, &FileRenamed{From: from, To: to})
}

func NewConflict(files []string) *Message {
	return newMessage(MsgConflict, &Conflict{Files: files})
}
