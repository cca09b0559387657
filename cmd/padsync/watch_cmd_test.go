package main

import (
	"testing"
	"time"

	"github.com/openmined/padsync/internal/padmsg"
	"github.com/stretchr/testify/assert"
)

func TestRenderEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		msg  *padmsg.Message
		want []string
	}{
		{padmsg.NewFileLocked("todo.md", "0123456789ab", "editor"), []string{"file_locked", "todo.md", "01234567", "editor"}},
		{padmsg.NewLockDenied("todo.md", "abc", "structured_view"), []string{"lock_denied", "structured_view"}},
		{padmsg.NewFileModified("notes/a.md"), []string{"file_modified", "notes/a.md"}},
		{padmsg.NewFileRenamed("a.md", "b.md"), []string{"file_renamed", "a.md -> b.md"}},
		{padmsg.NewConflict([]string{"x.md", "y.md"}), []string{"conflict", "x.md, y.md"}},
		{padmsg.NewSaveStatus(padmsg.SaveStatus{Path: "a.md", State: "failed", Error: "disk full"}), []string{"save_status", "failed: disk full"}},
		{padmsg.NewError(409, "a.md", "busy"), []string{"error", "409", "busy"}},
		{padmsg.NewPing(), []string{"ping"}},
	}

	for _, tt := range tests {
		line := renderEvent(at, tt.msg)
		assert.Contains(t, line, "09:30:00")
		for _, want := range tt.want {
			assert.Contains(t, line, want, "type %s", tt.msg.Type)
		}
	}
}
