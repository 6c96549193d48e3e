package main

import (
	"fmt"

	"github.com/toqueteos/webbrowser"
)

func openBrowser(addr string) error {
	if err := webbrowser.Open(addr); err != nil {
		return fmt.Errorf("failed to open %s: %w", addr, err)
	}
	return nil
}
