package notify

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// Console prints notifications to a terminal. Loading notifications run a
// spinner until the next Notify or Clear.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	spinner *spinner.Spinner
}

// NewConsole creates a console notifier writing to out (stdout when nil)
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out}
}

func (c *Console) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLocked()

	switch n.Level {
	case Loading:
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(c.out))
		s.Suffix = " " + n.Message
		s.Start()
		c.spinner = s
	case Success:
		fmt.Fprintln(c.out, color.GreenString("✓ %s", n.Message))
	case Warning:
		fmt.Fprintln(c.out, color.YellowString("! %s", n.Message))
	case Error:
		fmt.Fprintln(c.out, color.RedString("✗ %s", n.Message))
	default:
		fmt.Fprintln(c.out, color.CyanString("%s", n.Message))
	}
}

func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLocked()
}

func (c *Console) clearLocked() {
	if c.spinner != nil {
		c.spinner.Stop()
		c.spinner = nil
	}
}
