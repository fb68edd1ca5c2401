package terminal

import (
	"fmt"
	"text/tabwriter"

	"github.com/v8scope/v8scope/pkg/config"
	"github.com/v8scope/v8scope/pkg/v8"
)

// HeapOptions returns the decoding limits set in conf.
func HeapOptions(conf *config.Config) v8.Options {
	return v8.Options{
		MaxStringLen:       conf.GetMaxStringLen(),
		MaxStringDepth:     conf.GetMaxStringDepth(),
		MaxStringBytes:     int64(conf.GetMaxStringBytes()),
		MaxConstructorHops: conf.GetMaxConstructorHops(),
	}
}

func configureCmd(t *Term, args string) error {
	switch args {
	case "-list":
		return configureList(t)
	case "-save":
		return config.SaveConfig(t.conf)
	case "":
		return fmt.Errorf("wrong number of arguments to \"config\"")
	default:
		err := configureSet(t, args)
		if err != nil {
			return err
		}
		if t.debugger != nil {
			t.debugger.SetOptions(HeapOptions(t.conf))
		}
		return nil
	}
}

func configureList(t *Term) error {
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 1, ' ', 0)
	config.ConfigureList(w, t.conf, "yaml")
	return w.Flush()
}

func configureSet(t *Term, args string) error {
	v := config.Split2PartsBySpace(args)

	cfgname := v[0]
	var rest string
	if len(v) == 2 {
		rest = v[1]
	}

	switch cfgname {
	case "alias":
		return configureSetAlias(t, rest)
	case "layout-profiles":
		return configureSetLayoutProfiles(t, rest)
	}

	field := config.ConfigureFindFieldByName(t.conf, cfgname, "yaml")
	if !field.CanAddr() {
		return fmt.Errorf("%q is not a configuration parameter", cfgname)
	}
	if rest == "" {
		fmt.Fprint(t.stdout, config.ConfigureListByName(t.conf, cfgname, "yaml"))
		return nil
	}
	return config.ConfigureSetSimple(rest, cfgname, field)
}

// configureSetLayoutProfiles adds a directory to the layout profile search
// path, or removes it if it is already there.
func configureSetLayoutProfiles(t *Term, rest string) error {
	argv := config.SplitQuotedFields(rest, '"')
	if len(argv) != 1 {
		return fmt.Errorf("wrong number of arguments to \"config layout-profiles\"")
	}
	for i, dir := range t.conf.LayoutProfiles {
		if dir == argv[0] {
			copy(t.conf.LayoutProfiles[i:], t.conf.LayoutProfiles[i+1:])
			t.conf.LayoutProfiles = t.conf.LayoutProfiles[:len(t.conf.LayoutProfiles)-1]
			return nil
		}
	}
	t.conf.LayoutProfiles = append(t.conf.LayoutProfiles, argv[0])
	return nil
}

func configureSetAlias(t *Term, rest string) error {
	argv := config.SplitQuotedFields(rest, '"')
	switch len(argv) {
	case 1: // delete alias rule
		for k := range t.conf.Aliases {
			v := t.conf.Aliases[k]
			for i := range v {
				if v[i] == argv[0] {
					copy(v[i:], v[i+1:])
					t.conf.Aliases[k] = v[:len(v)-1]
					break
				}
			}
		}
	case 2: // add alias rule
		alias, cmd := argv[1], argv[0]
		if t.conf.Aliases == nil {
			t.conf.Aliases = make(map[string][]string)
		}
		t.conf.Aliases[cmd] = append(t.conf.Aliases[cmd], alias)
	default:
		return fmt.Errorf("wrong number of arguments to \"config alias\"")
	}
	t.cmds.Merge(t.conf.Aliases)
	return nil
}
