package client

import (
	"github.com/gen2brain/beeep"
)

// DesktopNotifier shows notices as desktop notifications
type DesktopNotifier struct {
	AppName string
}

// Notify implements Notifier
func (n DesktopNotifier) Notify(title, message string) error {
	if n.AppName != "" {
		beeep.AppName = n.AppName
	}
	return beeep.Notify(title, message, "")
}
