package runtime

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type REPL struct {
	components *RuntimeComponents
	reader     *bufio.Reader
	out        io.Writer
}

func NewREPL(components *RuntimeComponents, in io.Reader, out io.Writer) *REPL {
	return &REPL{
		components: components,
		reader:     bufio.NewReader(in),
		out:        out,
	}
}

func (r *REPL) Start() error {
	if r.components.Loop == nil {
		return fmt.Errorf("conversation loop not initialized")
	}
	target := r.components.Session.Target()
	fmt.Fprintf(r.out, "tabletalk session %s on %s\n", r.components.Session.ID, describeTarget(target.String()))
	fmt.Fprintln(r.out, "Type '/help' for commands, '/exit' to quit.")

	for {
		select {
		case <-r.components.Ctx.Done():
			return nil
		default:
			if err := r.readLine(); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				slog.Warn("REPL input failed", "error", err)
			}
		}
	}
}

func (r *REPL) readLine() error {
	fmt.Fprint(r.out, "> ")
	text, err := r.reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(text) == "") {
		return err
	}
	atEOF := errors.Is(err, io.EOF)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sess := r.components.Session
	if r.components.Commands != nil && r.components.Commands.CanHandle(text) {
		res, cmdErr := r.components.Commands.Execute(r.components.Ctx, sess, text)
		if cmdErr != nil {
			return cmdErr
		}
		if res.Exit {
			return io.EOF
		}
	} else {
		// Failures were already shown to the user and logged by the loop.
		_ = r.components.Loop.Turn(r.components.Ctx, sess, text)
	}

	if atEOF {
		return io.EOF
	}
	return nil
}

func describeTarget(s string) string {
	if s == "" {
		return "no table (use /use <db.schema.table>)"
	}
	return s
}
