package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword is swapped out in tests.
var readPassword = term.ReadPassword

// secret returns value when set, otherwise prompts for it. Input is read
// without echo when stdin is a terminal.
func (a *app) secret(cmd *cobra.Command, value, label string) (string, error) {
	if value != "" {
		return value, nil
	}

	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "%s: ", label)

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := readPassword(int(f.Fd()))
		fmt.Fprintln(errOut)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
		}
		return required(string(raw), label)
	}

	line, err := a.input.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return required(strings.TrimRight(line, "\r\n"), label)
}

// text returns value when set, otherwise prompts for a visible line.
func (a *app) text(cmd *cobra.Command, value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", label)

	line, err := a.input.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return required(strings.TrimSpace(line), label)
}

func required(value, label string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return value, nil
}
