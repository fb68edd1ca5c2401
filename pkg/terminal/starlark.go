package terminal

import (
	"github.com/v8scope/v8scope/pkg/terminal/starbind"
	"github.com/v8scope/v8scope/service/debugger"
)

type starlarkContext struct {
	term *Term
}

var _ starbind.Context = starlarkContext{}

func (ctx starlarkContext) Debugger() *debugger.Debugger {
	return ctx.term.debugger
}

func (ctx starlarkContext) RegisterCommand(name, helpMsg string, fn func(args string) error) {
	cmdfn := func(t *Term, args string) error {
		return fn(args)
	}
	ctx.term.cmds.Register(name, cmdfn, helpMsg)
}

func (ctx starlarkContext) CallCommand(cmdstr string) error {
	return ctx.term.cmds.Call(cmdstr, ctx.term)
}

func (ctx starlarkContext) CurrentThread() int {
	return ctx.term.thread
}
