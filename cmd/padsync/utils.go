package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/openmined/padsync/internal/config"
	"github.com/openmined/padsync/internal/padsdk"
	"github.com/spf13/cobra"
)

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
	bold      = lipgloss.NewStyle().Bold(true)
)

// newClient loads the config and returns an SDK for the daemon it points at.
func newClient(cmd *cobra.Command) (*padsdk.PadSDK, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	sdk, err := padsdk.New(clientURL(cfg.HTTP.Addr), cfg.HTTP.Token)
	if err != nil {
		return nil, nil, err
	}
	return sdk, cfg, nil
}

// clientURL turns a listen address into one a client can dial.
func clientURL(addr string) string {
	switch {
	case strings.HasPrefix(addr, ":"):
		addr = "127.0.0.1" + addr
	case strings.HasPrefix(addr, "0.0.0.0:"):
		addr = "127.0.0.1" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return addr
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
