package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// promptConfirm asks the user a yes/no question on the terminal. Anything
// unreadable (EOF, redirected stdin) falls back to the default answer so
// scripted runs never hang.
func promptConfirm(prompt string, defaultAnswer bool) bool {
	suffix := "[Y/n]"
	if !defaultAnswer {
		suffix = "[y/N]"
	}
	fmt.Fprintf(os.Stderr, "%s %s ", prompt, suffix)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return defaultAnswer
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return defaultAnswer
	}
}
