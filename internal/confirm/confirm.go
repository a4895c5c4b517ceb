// Package confirm asks the operator yes/no questions.
//
// Every component that may stop the pipeline on an operator decision takes a
// Confirmer. The policy (always yes, or ask) is chosen once by the CLI and
// passed down; nothing here is process-wide state.
package confirm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// ErrDeclined reports that the operator chose not to proceed. It is not a
// failure: the CLI exits with status 0 when it sees it.
var ErrDeclined = errors.New("operator declined to continue")

// Policy selects how confirmations are answered.
type Policy int

const (
	// Interactive asks the operator.
	Interactive Policy = iota
	// AlwaysYes answers every prompt with yes ("--yes-to-all").
	AlwaysYes
)

func (p Policy) String() string {
	if p == AlwaysYes {
		return "always-yes"
	}
	return "interactive"
}

// Confirmer answers a single yes/no prompt.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// New returns the Confirmer for policy. Interactive prompts use the
// terminal UI when in is a terminal and a plain line reader otherwise
// (pipes, CI).
func New(policy Policy, in io.Reader, out io.Writer) Confirmer {
	if policy == AlwaysYes {
		return &autoConfirmer{out: out}
	}
	if f, ok := in.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return &ttyConfirmer{in: in, out: out}
	}
	return NewLineConfirmer(in, out)
}

// OrDecline asks prompt and returns ErrDeclined unless the answer is yes.
func OrDecline(ctx context.Context, c Confirmer, prompt string) error {
	ok, err := c.Confirm(ctx, prompt)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDeclined
	}
	return nil
}

// isYes reports whether answer starts with y or Y after trimming.
func isYes(answer string) bool {
	answer = strings.TrimSpace(answer)
	return answer != "" && (answer[0] == 'y' || answer[0] == 'Y')
}

// ---------------------------------------------------------------------------
// always yes
// ---------------------------------------------------------------------------

type autoConfirmer struct {
	out io.Writer
}

// Confirm echoes the prompt followed by the implied answer.
func (a *autoConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if a.out != nil {
		fmt.Fprintf(a.out, "%sy\n", prompt)
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// line reader
// ---------------------------------------------------------------------------

// LineConfirmer reads one line per prompt. Empty input, EOF and anything
// not starting with y decline.
type LineConfirmer struct {
	r   *bufio.Reader
	out io.Writer
}

// NewLineConfirmer reads answers from in and writes prompts to out.
func NewLineConfirmer(in io.Reader, out io.Writer) *LineConfirmer {
	return &LineConfirmer{r: bufio.NewReader(in), out: out}
}

func (l *LineConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprint(l.out, prompt)
	line, err := l.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}
	if errors.Is(err, io.EOF) && line == "" {
		fmt.Fprintln(l.out)
	}
	return isYes(line), nil
}

var (
	_ Confirmer = (*autoConfirmer)(nil)
	_ Confirmer = (*LineConfirmer)(nil)
	_ Confirmer = (*ttyConfirmer)(nil)
)
