package dap

import (
	"encoding/json"
	"fmt"
)

type LaunchMode string

// LaunchMode is the type of a launch mode.
const (
	// "core": opens a core dump of the program. This is the default mode.
	CoreLaunchMode LaunchMode = "core"
)

func isValidLaunchMode(mode LaunchMode) bool {
	return mode == CoreLaunchMode
}

// LaunchConfig is the collection of launch request attributes recognized by the DAP server.
type LaunchConfig struct {
	Mode LaunchMode `json:"mode,omitempty"`

	// Required. Path to the node executable that produced the core dump.
	// Its symbol table provides the postmortem constants and its
	// mappings back the read-only segments missing from the dump.
	Program string `json:"program,omitempty"`

	// Required. Path to the core dump.
	CoreFilePath string `json:"coreFilePath,omitempty"`

	LaunchAttachCommonConfig
}

// LaunchAttachCommonConfig is the attributes common in both launch/attach requests.
type LaunchAttachCommonConfig struct {
	// Maximum depth of stack trace.
	// (Default: `50`)
	StackTraceDepth int `json:"stackTraceDepth,omitempty"`

	// Render the receiver and arguments of function frames in the stack trace.
	ShowFrameArgs bool `json:"showFrameArgs,omitempty"`

	// Number of characters printed before a string is truncated.
	MaxStringLen int `json:"maxStringLen,omitempty"`

	// Name or path of a layout profile. Its constants take precedence
	// over the ones read from the executable.
	LayoutProfile string `json:"layoutProfile,omitempty"`

	// Semver constraint the layout profile must satisfy, e.g. ">= 8.4".
	V8Version string `json:"v8Version,omitempty"`

	// Constants override every other constant source. Names may carry
	// the v8dbg_ prefix.
	Constants map[string]int64 `json:"constants,omitempty"`
}

type AttachMode string

// AttachMode is the type of an attach mode.
const (
	// "local": inspects the stopped local process with the given ProcessID.
	LocalAttachMode AttachMode = "local"
)

func isValidAttachMode(mode AttachMode) bool {
	return mode == LocalAttachMode
}

// AttachConfig is the collection of attach request attributes recognized by the DAP server.
type AttachConfig struct {
	Mode AttachMode `json:"mode,omitempty"`

	// The numeric ID of the process to be inspected. Required and must not be 0.
	ProcessID int `json:"processId,omitempty"`

	// Path to the node executable. Defaults to the executable of the process.
	Program string `json:"program,omitempty"`

	LaunchAttachCommonConfig
}

// unmarshalLaunchAttachArgs wraps unmarshalling of launch/attach request's
// arguments attribute. Upon unmarshal failure, it returns an error massaged
// to be suitable for end-users.
func unmarshalLaunchAttachArgs(input json.RawMessage, config interface{}) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, config); err != nil {
		if uerr, ok := err.(*json.UnmarshalTypeError); ok {
			// Format json.UnmarshalTypeError error string in our own way. E.g.,
			//   "json: cannot unmarshal number into Go struct field LaunchConfig.program of type string"
			//   => "cannot unmarshal number into 'program' of type string"
			typ := uerr.Type.String()
			if uerr.Field == "mode" {
				typ = "string"
			}
			return fmt.Errorf("cannot unmarshal %v into %q of type %v", uerr.Value, uerr.Field, typ)
		}
		return err
	}
	return nil
}
