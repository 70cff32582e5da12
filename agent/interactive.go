package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// StopWord ends an interactive session when entered on its own line.
const StopWord = "STOP"

// Interactive runs a line-oriented conversation loop: each line from r is
// sent to the agent and the reply written to w, until r is exhausted, ctx is
// done, or the stop word is entered.
func (a *Agent) Interactive(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	fmt.Fprintf(w, "%s ready. Enter %s to finish.\n", a.name, StopWord)

	for {
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == StopWord {
			return nil
		}

		reply, err := a.Send(ctx, line)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(w, reply)
	}
}
