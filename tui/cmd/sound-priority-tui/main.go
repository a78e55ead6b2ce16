package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sound-priority/tui/internal/app"
	"github.com/sound-priority/tui/internal/client"
	"github.com/sound-priority/tui/internal/profile"
)

func main() {
	profilePath := flag.String("profile", "", "YAML file with url and token")
	wsURL := flag.String("url", "", "WebSocket URL of the sound-priority daemon (default "+profile.DefaultURL+")")
	token := flag.String("token", "", "Auth token (if the daemon requires it)")
	flag.Parse()

	p, err := profile.Load(*profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *wsURL != "" {
		p.URL = *wsURL
	}
	if *token != "" {
		p.Token = *token
	}

	ws := client.NewWSClient(p.URL, p.Token)
	httpClient := client.NewHTTPClient(p.HTTPBase(), p.Token)

	m := app.New(ws, httpClient)
	prog := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := prog.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
