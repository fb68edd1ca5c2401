package config

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// Like strings.Fields but ignores spaces inside areas surrounded
// by the specified quote character.
// To specify a single quote use backslash to escape it: '\”
func SplitQuotedFields(in string, quote rune) []string {
	type stateEnum int
	const (
		inSpace stateEnum = iota
		inField
		inQuote
		inQuoteEscaped
	)
	state := inSpace
	r := []string{}
	var buf bytes.Buffer

	for _, ch := range in {
		switch state {
		case inSpace:
			if ch == quote {
				state = inQuote
			} else if !unicode.IsSpace(ch) {
				buf.WriteRune(ch)
				state = inField
			}

		case inField:
			if ch == quote {
				state = inQuote
			} else if unicode.IsSpace(ch) {
				r = append(r, buf.String())
				buf.Reset()
			} else {
				buf.WriteRune(ch)
			}

		case inQuote:
			if ch == quote {
				state = inField
			} else if ch == '\\' {
				state = inQuoteEscaped
			} else {
				buf.WriteRune(ch)
			}

		case inQuoteEscaped:
			buf.WriteRune(ch)
			state = inQuote
		}
	}

	if buf.Len() != 0 {
		r = append(r, buf.String())
	}

	return r
}

// Split2PartsBySpace splits s at the first space and trims both parts.
func Split2PartsBySpace(s string) []string {
	v := strings.SplitN(s, " ", 2)
	for i := range v {
		v[i] = strings.TrimSpace(v[i])
	}
	return v
}

// ConfigureSetSimple sets field, which must be the field of a configuration
// struct called cfgname, to the value parsed from rest.
func ConfigureSetSimple(rest string, cfgname string, field reflect.Value) error {
	simpleArg := func(typ reflect.Type) (reflect.Value, error) {
		switch typ.Kind() {
		case reflect.Int:
			n, err := strconv.Atoi(rest)
			if err != nil {
				return reflect.ValueOf(nil), fmt.Errorf("argument to %q must be a number", cfgname)
			}
			if n < 0 {
				return reflect.ValueOf(nil), fmt.Errorf("argument to %q must be a number greater than zero", cfgname)
			}
			return reflect.ValueOf(&n), nil
		case reflect.Bool:
			if rest != "true" && rest != "false" {
				return reflect.ValueOf(nil), fmt.Errorf("argument to %q must be true or false", cfgname)
			}
			v := rest == "true"
			return reflect.ValueOf(&v), nil
		case reflect.String:
			return reflect.ValueOf(&rest), nil
		default:
			return reflect.ValueOf(nil), fmt.Errorf("unsupported type for configuration key %q", cfgname)
		}
	}

	if field.Kind() == reflect.Ptr {
		val, err := simpleArg(field.Type().Elem())
		if err != nil {
			return err
		}
		field.Set(val)
	} else {
		val, err := simpleArg(field.Type())
		if err != nil {
			return err
		}
		field.Set(val.Elem())
	}
	return nil
}

// ConfigureList writes every field of config that has a tag named tag to w.
func ConfigureList(w io.Writer, config interface{}, tag string) {
	rv := reflect.ValueOf(config).Elem()
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		name := tagName(rt.Field(i), tag)
		if name == "" || name == "aliases" {
			continue
		}
		writeField(w, rv.Field(i), name)
	}
}

// ConfigureListByName returns the line ConfigureList would print for the
// field named cfgname, or the empty string if no such field exists.
func ConfigureListByName(conf interface{}, cfgname, tag string) string {
	if cfgname == "" {
		return ""
	}
	field := ConfigureFindFieldByName(conf, cfgname, tag)
	if !field.IsValid() {
		return ""
	}
	buf := new(bytes.Buffer)
	writeField(buf, field, cfgname)
	return buf.String()
}

// ConfigureFindFieldByName returns the field of conf whose tag is cfgname.
func ConfigureFindFieldByName(conf interface{}, cfgname, tag string) reflect.Value {
	rv := reflect.ValueOf(conf).Elem()
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		if tagName(rt.Field(i), tag) == cfgname {
			return rv.Field(i)
		}
	}
	return reflect.Value{}
}

func tagName(field reflect.StructField, tag string) string {
	name := field.Tag.Get(tag)
	if comma := strings.Index(name, ","); comma >= 0 {
		name = name[:comma]
	}
	return name
}

func writeField(w io.Writer, field reflect.Value, fieldName string) {
	switch field.Kind() {
	case reflect.Ptr:
		if !field.IsNil() {
			fmt.Fprintf(w, "%s\t%v\n", fieldName, field.Elem())
		} else {
			fmt.Fprintf(w, "%s\t<not defined>\n", fieldName)
		}
	case reflect.String:
		fmt.Fprintf(w, "%s\t%q\n", fieldName, field)
	default:
		fmt.Fprintf(w, "%s\t%v\n", fieldName, field)
	}
}
