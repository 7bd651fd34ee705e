package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// prompter reads answers line by line. The shell shares one with the
// commands it runs so no buffered input is lost between them.
type prompter struct {
	r *bufio.Reader
	w io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{r: bufio.NewReader(in), w: out}
}

var sharedPrompter *prompter

func promptFor(cmd *cobra.Command) *prompter {
	if sharedPrompter != nil {
		return sharedPrompter
	}
	return newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
}

// readLine returns the next line without its terminator. io.EOF is only
// returned when no input at all was read.
func (p *prompter) readLine() (string, error) {
	line, err := p.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *prompter) ask(label string) (string, error) {
	fmt.Fprintf(p.w, "%s: ", label)
	line, err := p.readLine()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// askIfEmpty prompts for label unless value is already set.
func (p *prompter) askIfEmpty(value *string, label string) error {
	if *value != "" {
		return nil
	}
	v, err := p.ask(label)
	if err != nil {
		return err
	}
	*value = v
	return nil
}
