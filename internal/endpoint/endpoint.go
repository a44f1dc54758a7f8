// Package endpoint describes how to reach one virtualization host.
package endpoint

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	vmerrors "vmplex/internal/errors"
)

// DefaultPort is the control-plane port used when none is given.
const DefaultPort = 18083

// DefaultHost is used for the startup host when no host option is given.
const DefaultHost = "localhost"

// Endpoint represents the connection details of a virtualization host
type Endpoint struct {
	Name     string // Display name, defaults to Host
	Host     string // Hostname or IP address
	Port     int    // Control-plane port number
	User     string // Control-plane username
	Password string // Control-plane password
	Remote   bool   // Networked (web service) style rather than a local control plane
}

// New returns an endpoint for host with the default port and the display
// name defaulted to the host.
func New(host string, remote bool) Endpoint {
	return Endpoint{
		Name:   host,
		Host:   host,
		Port:   DefaultPort,
		Remote: remote,
	}
}

// URL returns the control-plane address in http://host:port/ form.
func (e Endpoint) URL() string {
	return "http://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port)) + "/"
}

// DisplayName returns Name, or Host when no display name was set.
func (e Endpoint) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Host
}

// Validate validates an endpoint for correctness
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return vmerrors.NewInvalidArgumentError("host cannot be empty", nil)
	}
	if strings.ContainsAny(e.Host, " \t\n;") {
		return vmerrors.NewInvalidArgumentError(fmt.Sprintf("invalid host %q", e.Host), nil)
	}
	if e.Port < 1 || e.Port > 65535 {
		return vmerrors.NewInvalidArgumentError(fmt.Sprintf("port number %d out of valid range (1-65535)", e.Port), nil)
	}
	return nil
}

// ParsePort parses a port number and checks its range
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, vmerrors.NewInvalidArgumentError(fmt.Sprintf("invalid port number '%s'", s), err)
	}
	if port < 1 || port > 65535 {
		return 0, vmerrors.NewInvalidArgumentError(fmt.Sprintf("port number %d out of valid range (1-65535)", port), nil)
	}
	return port, nil
}

// ParseOpts parses a comma separated key=value list such as
// "host=vbox1,port=18083,user=admin,password=secret,name=lab".
// Recognized keys are host, port, user, password and name.
func ParseOpts(input string) (map[string]string, error) {
	opts := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return opts, nil
	}

	for i, item := range strings.Split(input, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		key, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, vmerrors.NewInvalidArgumentError(fmt.Sprintf("option %d ('%s') is not key=value", i+1, item), nil)
		}
		key = strings.ToLower(strings.TrimSpace(key))

		switch key {
		case "host", "port", "user", "password", "name":
		default:
			return nil, vmerrors.NewInvalidArgumentError(fmt.Sprintf("unknown option '%s'", key), nil)
		}
		if _, dup := opts[key]; dup {
			return nil, vmerrors.NewInvalidArgumentError(fmt.Sprintf("duplicate option '%s'", key), nil)
		}
		opts[key] = strings.TrimSpace(value)
	}

	return opts, nil
}

// FromOpts builds the startup endpoint from parsed options. The host
// defaults to localhost and the display name to the host.
func FromOpts(opts map[string]string, remote bool) (Endpoint, error) {
	host := opts["host"]
	if host == "" {
		host = DefaultHost
	}

	ep := New(host, remote)
	if name := opts["name"]; name != "" {
		ep.Name = name
	}
	if p, ok := opts["port"]; ok {
		port, err := ParsePort(p)
		if err != nil {
			return Endpoint{}, err
		}
		ep.Port = port
	}
	ep.User = opts["user"]
	ep.Password = opts["password"]

	if err := ep.Validate(); err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}
