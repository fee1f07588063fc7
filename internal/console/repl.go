package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Repl runs the line-buffered menu loop spec.md §6 describes, reading
// from in and writing prompts/output to w. Ported from the original
// main.py's menu loop in idiom, not translated line-for-line: Go's
// bufio.Scanner replaces the Python REPL's builtin input().
func Repl(c *Console, in io.Reader, w io.Writer) {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(w, "\n1. Status | 2. PUT | 3. GET | q. Quit\n> ")
		if !scanner.Scan() {
			return
		}
		choice := strings.TrimSpace(scanner.Text())

		switch choice {
		case "1":
			c.Status()
		case "2":
			fmt.Fprint(w, "key: ")
			if !scanner.Scan() {
				return
			}
			key := strings.TrimSpace(scanner.Text())
			fmt.Fprint(w, "value: ")
			if !scanner.Scan() {
				return
			}
			value := strings.TrimSpace(scanner.Text())
			c.Put(key, value)
		case "3":
			fmt.Fprint(w, "key: ")
			if !scanner.Scan() {
				return
			}
			key := strings.TrimSpace(scanner.Text())
			c.Get(key)
		case "q", "Q":
			return
		default:
			fmt.Fprintf(w, "unrecognized option %q\n", choice)
		}
	}
}
