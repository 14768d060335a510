package client

import (
	"fmt"
	"strings"

	"vrtt/protocol"
)

type paramKind uint8

const (
	paramUint paramKind = iota
	paramBytes
)

type param struct {
	name string
	kind paramKind
}

// messageFormat describes one dictionary entry, parsed from its signature
// ("name arg=%u data=%.*s")
type messageFormat struct {
	id     uint16
	name   string
	params []param
}

func parseFormat(id uint16, signature string) (*messageFormat, error) {
	fields := strings.Fields(signature)
	if len(fields) == 0 {
		return nil, fmt.Errorf("message %d: empty signature", id)
	}

	f := &messageFormat{id: id, name: fields[0]}
	for _, field := range fields[1:] {
		name, spec, ok := strings.Cut(field, "=")
		if !ok {
			return nil, fmt.Errorf("message %s: malformed parameter %q", f.name, field)
		}
		p := param{name: name}
		switch spec {
		case "%u", "%i", "%c", "%hu", "%hi":
			p.kind = paramUint
		case "%s", "%.*s", "%*s":
			p.kind = paramBytes
		default:
			return nil, fmt.Errorf("message %s: unsupported format %q", f.name, spec)
		}
		f.params = append(f.params, p)
	}
	return f, nil
}

// Response is a decoded message from the target
type Response struct {
	Name   string
	Values map[string]uint32
	Data   map[string][]byte
}

// decode reads the parameters of f and advances data past them
func (f *messageFormat) decode(data *[]byte) (*Response, error) {
	r := &Response{Name: f.name, Values: make(map[string]uint32)}
	for _, p := range f.params {
		switch p.kind {
		case paramBytes:
			b, err := protocol.DecodeVLQBytes(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", f.name, p.name, err)
			}
			if r.Data == nil {
				r.Data = make(map[string][]byte)
			}
			r.Data[p.name] = append([]byte(nil), b...)
		default:
			v, err := protocol.DecodeVLQUint(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", f.name, p.name, err)
			}
			r.Values[p.name] = v
		}
	}
	return r, nil
}

// encode writes args in parameter order. Only numeric parameters can be
// sent.
func (f *messageFormat) encode(args []uint32) (func(output protocol.OutputBuffer), error) {
	if len(args) != len(f.params) {
		return nil, fmt.Errorf("%s: got %d arguments, want %d", f.name, len(args), len(f.params))
	}
	for _, p := range f.params {
		if p.kind != paramUint {
			return nil, fmt.Errorf("%s: cannot send parameter %s", f.name, p.name)
		}
	}
	return func(output protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQUint(output, a)
		}
	}, nil
}
