package main

import (
	"fmt"
	"strconv"
	"strings"
)

type commandKind int

const (
	cmdShow commandKind = iota
	cmdSelect
	cmdNext
	cmdPrev
	cmdJump
	cmdSubmit
	cmdQuit
	cmdLogout
	cmdHelp
)

type command struct {
	kind commandKind
	// arg is the 1-based option or question number.
	arg int
}

// parseCommand reads one line of exam input. A bare number selects that
// option.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{kind: cmdShow}, nil
	}

	if n, err := strconv.Atoi(fields[0]); err == nil && len(fields) == 1 {
		return command{kind: cmdSelect, arg: n}, nil
	}

	switch fields[0] {
	case "n", "next":
		return command{kind: cmdNext}, nil
	case "p", "prev":
		return command{kind: cmdPrev}, nil
	case "j", "jump":
		if len(fields) != 2 {
			return command{}, fmt.Errorf("usage: jump <question number>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return command{}, fmt.Errorf("question number must be a number")
		}
		return command{kind: cmdJump, arg: n}, nil
	case "s", "submit":
		return command{kind: cmdSubmit}, nil
	case "q", "quit":
		return command{kind: cmdQuit}, nil
	case "logout":
		return command{kind: cmdLogout}, nil
	case "h", "help", "?":
		return command{kind: cmdHelp}, nil
	}
	return command{}, fmt.Errorf("unknown command %q (type help)", fields[0])
}

const helpText = `Commands:
  <number>     choose that option for the current question
  n, next      next question
  p, prev      previous question
  j <number>   jump to question
  s, submit    submit the exam
  logout       release this device and quit
  q, quit      save and quit (resume later)`
