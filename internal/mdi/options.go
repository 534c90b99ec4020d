package mdi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mdlayher/vsock"
)

// Participant roles named in the -mdi option string.
const (
	RoleDriver = "DRIVER"
	RoleEngine = "ENGINE"
)

// Method selects the transport.
type Method string

const (
	MethodTCP   Method = "TCP"
	MethodUnix  Method = "UNIX"
	MethodVsock Method = "VSOCK"
)

const defaultHostname = "localhost"

// Options is the parsed -mdi option string, e.g.
// "-role DRIVER -name driver -method TCP -port 8021".
type Options struct {
	Role     string
	Name     string
	Method   Method
	Hostname string
	Port     int
	Socket   string
	CID      uint32
}

// ParseOptions parses an option string of "-key value" pairs. Every key must
// be known and carry a value, and the endpoint fields required by the method
// must be present.
func ParseOptions(s string) (Options, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Options{}, fmt.Errorf("empty option string")
	}

	var opts Options
	for i := 0; i < len(fields); i += 2 {
		key := fields[i]
		if i+1 >= len(fields) {
			return Options{}, fmt.Errorf("option %s has no value", key)
		}
		val := fields[i+1]

		switch key {
		case "-role":
			opts.Role = strings.ToUpper(val)
		case "-name":
			opts.Name = val
		case "-method":
			opts.Method = Method(strings.ToUpper(val))
		case "-hostname":
			opts.Hostname = val
		case "-port":
			port, err := strconv.Atoi(val)
			if err != nil || port < 1 || port > 65535 {
				return Options{}, fmt.Errorf("invalid -port %q", val)
			}
			opts.Port = port
		case "-socket":
			opts.Socket = val
		case "-cid":
			cid, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return Options{}, fmt.Errorf("invalid -cid %q", val)
			}
			opts.CID = uint32(cid)
		default:
			return Options{}, fmt.Errorf("unrecognized option %s", key)
		}
	}

	if err := opts.validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func (o *Options) validate() error {
	switch o.Role {
	case RoleDriver, RoleEngine:
	case "":
		return fmt.Errorf("-role is required")
	default:
		return fmt.Errorf("unsupported -role %q", o.Role)
	}
	if o.Name == "" {
		return fmt.Errorf("-name is required")
	}

	switch o.Method {
	case MethodTCP:
		if o.Port == 0 {
			return fmt.Errorf("-port is required for method %s", o.Method)
		}
		if o.Role == RoleEngine && o.Hostname == "" {
			o.Hostname = defaultHostname
		}
	case MethodUnix:
		if o.Socket == "" {
			return fmt.Errorf("-socket is required for method %s", o.Method)
		}
	case MethodVsock:
		if o.Port == 0 {
			return fmt.Errorf("-port is required for method %s", o.Method)
		}
		if o.Role == RoleEngine && o.CID == 0 {
			o.CID = vsock.Host
		}
	case "":
		return fmt.Errorf("-method is required")
	default:
		return fmt.Errorf("unsupported -method %q", o.Method)
	}
	return nil
}

// Address returns the endpoint in the form used for logging and TCP/UNIX
// dialing.
func (o Options) Address() string {
	switch o.Method {
	case MethodTCP:
		if o.Role == RoleDriver {
			return fmt.Sprintf(":%d", o.Port)
		}
		return fmt.Sprintf("%s:%d", o.Hostname, o.Port)
	case MethodUnix:
		return o.Socket
	case MethodVsock:
		return fmt.Sprintf("vsock(%d:%d)", o.CID, o.Port)
	default:
		return ""
	}
}
