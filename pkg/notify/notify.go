// Package notify shows short-lived user-facing messages. At most one
// notification is pending at a time; a new one replaces the previous one.
package notify

import "fmt"

// Level classifies a notification
type Level int

const (
	Info Level = iota
	Success
	Warning
	Error
	Loading
)

func (l Level) String() string {
	switch l {
	case Info:
		return "info"
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Loading:
		return "loading"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Notification is one transient message
type Notification struct {
	Level   Level
	Message string
}

// Notifier displays notifications. Notify must clear any pending
// notification before showing the new one.
type Notifier interface {
	Notify(n Notification)
	Clear()
}

// Nop drops every notification
type Nop struct{}

func (Nop) Notify(Notification) {}
func (Nop) Clear()              {}
