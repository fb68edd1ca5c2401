package dap

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/v8scope/v8scope/pkg/config"
	"github.com/v8scope/v8scope/pkg/layout"
	"github.com/v8scope/v8scope/service/debugger"
)

// v8Cmd runs cmdstr, an evaluate request expression with its "v8 "
// prefix removed.
func (s *Server) v8Cmd(cmdstr string) (string, error) {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	for _, cmd := range debugCommands(s) {
		for _, alias := range cmd.aliases {
			if alias == cmdname {
				return cmd.cmdFn(args)
			}
		}
	}
	return "", errNoCmd
}

type cmdfunc func(args string) (string, error)

type command struct {
	aliases []string
	helpMsg string
	cmdFn   cmdfunc
}

const (
	msgHelp = `Prints the help message.

help [command]

Type "help" followed by the name of a command for more information about it.`

	msgConfig = `Changes configuration parameters.

	config -list

	Show all configuration parameters.

	config -list <parameter>

	Show value of a configuration parameter.

	config <parameter> <value>

	Changes the value of a configuration parameter.`

	msgFrame = `Renders the stack frame at the given frame pointer.

	frame [-a] <fp>

With -a the receiver and the arguments of the function are printed.`

	msgConstants = `Lists the postmortem constants.

	constants [prefix]

Only the constants whose name starts with prefix are listed.`
)

// debugCommands returns a list of commands with default commands defined.
func debugCommands(s *Server) []command {
	return []command{
		{aliases: []string{"help", "h"}, cmdFn: s.helpMessage, helpMsg: msgHelp},
		{aliases: []string{"config"}, cmdFn: s.evaluateConfig, helpMsg: msgConfig},
		{aliases: []string{"frame", "f"}, cmdFn: s.evaluateFrame, helpMsg: msgFrame},
		{aliases: []string{"constants"}, cmdFn: s.evaluateConstants, helpMsg: msgConstants},
	}
}

var errNoCmd = errors.New("command not available")

func (s *Server) helpMessage(args string) (string, error) {
	var buf bytes.Buffer
	if args != "" {
		for _, cmd := range debugCommands(s) {
			for _, alias := range cmd.aliases {
				if alias == args {
					return cmd.helpMsg, nil
				}
			}
		}
		return "", errNoCmd
	}

	fmt.Fprintln(&buf, "The following commands are available:")

	for _, cmd := range debugCommands(s) {
		h := cmd.helpMsg
		if idx := strings.Index(h, "\n"); idx >= 0 {
			h = h[:idx]
		}
		if len(cmd.aliases) > 1 {
			fmt.Fprintf(&buf, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
		} else {
			fmt.Fprintf(&buf, "    %s \t %s\n", cmd.aliases[0], h)
		}
	}

	fmt.Fprintln(&buf)
	fmt.Fprintln(&buf, "Type help followed by a command for full documentation.")
	return buf.String(), nil
}

func (s *Server) evaluateConfig(expr string) (string, error) {
	argv := config.Split2PartsBySpace(expr)
	name := argv[0]
	if name == "-list" {
		if len(argv) > 1 {
			return config.ConfigureListByName(&s.args, argv[1], "cfgName"), nil
		}
		return listConfig(&s.args), nil
	}
	updated, res, err := configureSet(&s.args, expr)
	if err != nil {
		return "", err
	}

	if updated {
		if name == "maxStringLen" {
			opts := s.debugger.Heap().Options()
			opts.MaxStringLen = s.args.MaxStringLen
			s.debugger.SetOptions(opts)
		}
		res += "\nUpdated"
	}
	return res, nil
}

func (s *Server) evaluateFrame(args string) (string, error) {
	withArgs := s.args.ShowFrameArgs
	if rest := strings.TrimPrefix(args, "-a"); rest != args {
		withArgs = true
		args = strings.TrimSpace(rest)
	}
	if args == "" {
		return "", errors.New("not enough arguments")
	}
	fp, err := debugger.ParseWord(args)
	if err != nil {
		return "", err
	}
	return s.debugger.InspectFrame(fp, withArgs)
}

func (s *Server) evaluateConstants(prefix string) (string, error) {
	prefix = strings.TrimPrefix(prefix, layout.ConstantPrefix)
	entries := s.debugger.Constants(prefix)
	if len(entries) == 0 {
		return "", fmt.Errorf("no constants matching %q", prefix)
	}
	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s%s\t%d\n", layout.ConstantPrefix, e.Name, e.Value)
	}
	return buf.String(), nil
}
