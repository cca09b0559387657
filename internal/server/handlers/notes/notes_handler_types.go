package notes

import "time"

type ListRequest struct {
	Dir string `form:"dir"`
}

type ListResponse struct {
	Notes []string `json:"notes"`
}

type NoteResponse struct {
	Path       string    `json:"path"`
	Content    string    `json:"content"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

type WriteRequest struct {
	Content string `json:"content"`
	// Create fails with 409 when the note already exists.
	Create bool `json:"create"`
}

type WriteResponse struct {
	Path       string    `json:"path"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

type RenameRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

type RenameResponse struct {
	From string `json:"from"`
	To   string `json:"to"`
}
