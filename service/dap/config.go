package dap

import (
	"bytes"
	"fmt"

	"github.com/v8scope/v8scope/pkg/config"
)

func listConfig(args *launchAttachArgs) string {
	var buf bytes.Buffer
	config.ConfigureList(&buf, args, "cfgName")
	return buf.String()
}

func configureSet(sargs *launchAttachArgs, args string) (bool, string, error) {
	v := config.Split2PartsBySpace(args)

	cfgname := v[0]
	var rest string
	if len(v) == 2 {
		rest = v[1]
	}

	field := config.ConfigureFindFieldByName(sargs, cfgname, "cfgName")
	if !field.CanAddr() {
		return false, "", fmt.Errorf("%q is not a configuration parameter", cfgname)
	}

	// If there were no arguments provided, just list the value.
	if len(v) == 1 {
		return false, config.ConfigureListByName(sargs, cfgname, "cfgName"), nil
	}

	if err := config.ConfigureSetSimple(rest, cfgname, field); err != nil {
		return false, "", err
	}
	return true, config.ConfigureListByName(sargs, cfgname, "cfgName"), nil
}
