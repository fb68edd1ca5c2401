package terminal

type commandGroup uint8

const (
	otherCmds commandGroup = iota
	dataCmds
	threadCmds
	stackCmds
)

type commandGroupDescription struct {
	description string
	group       commandGroup
}

var commandGroupDescriptions = []commandGroupDescription{
	{"Inspecting heap values and memory", dataCmds},
	{"Listing and switching between threads", threadCmds},
	{"Viewing the call stack", stackCmds},
	{"Other commands", otherCmds},
}
