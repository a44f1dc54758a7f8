// Package fleet models the hosts, machines and groups vmplex manages.
package fleet

import (
	"context"
	"sort"

	vmerrors "vmplex/internal/errors"
)

// Credentials are guest login details. Both fields are set or neither is.
type Credentials struct {
	User     string
	Password string
}

// NewCredentials validates a credential pair. An empty string counts as
// absent, so exactly one of user and password being empty is rejected.
func NewCredentials(user, password string) (Credentials, error) {
	if (user == "") != (password == "") {
		return Credentials{}, vmerrors.NewInvalidArgumentError("missing user or password", nil)
	}
	return Credentials{User: user, Password: password}, nil
}

// Complete reports whether both fields are set.
func (c Credentials) Complete() bool {
	return c.User != "" && c.Password != ""
}

// IsZero reports whether neither field is set.
func (c Credentials) IsZero() bool {
	return c.User == "" && c.Password == ""
}

// MachineRef identifies a machine on a named host.
type MachineRef struct {
	Host string
	Name string
}

// Prompter asks the operator for input.
type Prompter interface {
	Prompt(ctx context.Context, label string) (string, error)
	PromptSecret(ctx context.Context, label string) (string, error)
}

// ResolveCredentials finds the login for machine on the active environment.
// The environment's own table is consulted first, then every group (in name
// order) for entries under the active environment's name. When neither has a
// complete pair the operator is prompted, unless unattended is set, in which
// case empty credentials are returned.
func ResolveCredentials(ctx context.Context, machine string, active *Environment, groups []*Group, unattended bool, prompter Prompter) (Credentials, error) {
	if active != nil {
		if creds, ok := active.Machine(machine); ok && creds.Complete() {
			return creds, nil
		}

		sorted := make([]*Group, len(groups))
		copy(sorted, groups)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })

		for _, g := range sorted {
			if creds, ok := g.Machine(active.Name(), machine); ok && creds.Complete() {
				return creds, nil
			}
		}
	}

	if unattended || prompter == nil {
		return Credentials{}, nil
	}

	user, err := prompter.Prompt(ctx, "User: ")
	if err != nil {
		return Credentials{}, err
	}
	password, err := prompter.PromptSecret(ctx, "Password: ")
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{User: user, Password: password}, nil
}
