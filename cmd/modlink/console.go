package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/arthur-debert/modlink/pkg/types"
)

// consoleDialog asks recovery questions on the terminal. Options are
// numbered; an empty answer picks the first option, which by convention
// is the safe one (cancel).
type consoleDialog struct {
	in *bufio.Reader
}

func newConsoleDialog() *consoleDialog {
	return &consoleDialog{in: bufio.NewReader(os.Stdin)}
}

func (d *consoleDialog) Ask(req types.DialogRequest) (int, error) {
	fmt.Fprintf(os.Stderr, "\n%s\n%s\n", req.Title, req.Message)
	for _, detail := range req.Detail {
		fmt.Fprintf(os.Stderr, "  %s\n", detail)
	}
	for i, opt := range req.Options {
		fmt.Fprintf(os.Stderr, "  [%d] %s\n", i+1, opt)
	}

	for {
		fmt.Fprintf(os.Stderr, "Choose [1-%d] (default 1): ", len(req.Options))
		line, err := d.in.ReadString('\n')
		if err != nil {
			return 0, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(req.Options) {
			fmt.Fprintln(os.Stderr, "Not a valid option.")
			continue
		}
		return n - 1, nil
	}
}

// consoleNotifier renders notifications as plain terminal output.
type consoleNotifier struct{}

func (consoleNotifier) ModsRefreshed(gameID string, discovered, removed []string) {
	for _, id := range discovered {
		fmt.Printf("discovered: %s\n", id)
	}
	for _, id := range removed {
		fmt.Printf("removed (deleted on disk): %s\n", id)
	}
	if len(discovered) == 0 && len(removed) == 0 {
		fmt.Println("staging area and mod list already in sync")
	}
}

func (consoleNotifier) Error(title string, err error, allowReport bool) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", title, err)
	if allowReport {
		fmt.Fprintln(os.Stderr, "This looks like a bug; please file an issue with the log file attached.")
	}
}

func (consoleNotifier) StartActivity(id, message string) {
	fmt.Fprintf(os.Stderr, "%s...\n", message)
}

func (consoleNotifier) StopActivity(id string) {}
