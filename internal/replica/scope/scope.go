// Package scope names the remote partition a local replica belongs to:
// the user's personal dataset or one team's shared dataset.
package scope

import (
	"fmt"
	"strings"
)

// Kind distinguishes personal from team partitions.
type Kind int

const (
	Personal Kind = iota
	Team
)

const teamPrefix = "team:"

// Context identifies one remote partition. Contexts are strictly
// partitioned: nothing is ever merged across two of them.
type Context struct {
	Kind   Kind
	TeamID string
}

// PersonalContext returns the personal partition.
func PersonalContext() Context {
	return Context{Kind: Personal}
}

// TeamContext returns the partition of team id.
func TeamContext(id string) Context {
	return Context{Kind: Team, TeamID: id}
}

// IsTeam reports whether c is a team partition.
func (c Context) IsTeam() bool {
	return c.Kind == Team
}

// String returns the stable key of the context, "personal" or
// "team:<id>". It is used as the remote partition name and as the local
// persistence namespace.
func (c Context) String() string {
	if c.Kind == Team {
		return teamPrefix + c.TeamID
	}
	return "personal"
}

// Validate checks that a team context names a team.
func (c Context) Validate() error {
	switch c.Kind {
	case Personal:
		if c.TeamID != "" {
			return fmt.Errorf("personal context cannot carry a team id")
		}
	case Team:
		if strings.TrimSpace(c.TeamID) == "" {
			return fmt.Errorf("team id is required")
		}
		if strings.ContainsAny(c.TeamID, "/ ") {
			return fmt.Errorf("team id %q must not contain slashes or spaces", c.TeamID)
		}
	default:
		return fmt.Errorf("unknown context kind %d", c.Kind)
	}
	return nil
}

// Parse reads a context key produced by String. A bare team id is accepted
// as a team context, so "context switch apiarists" works from the CLI.
func Parse(s string) (Context, error) {
	s = strings.TrimSpace(s)
	var c Context
	switch {
	case s == "" || s == "personal":
		c = PersonalContext()
	case strings.HasPrefix(s, teamPrefix):
		c = TeamContext(strings.TrimPrefix(s, teamPrefix))
	default:
		c = TeamContext(s)
	}
	if err := c.Validate(); err != nil {
		return Context{}, fmt.Errorf("invalid context %q: %w", s, err)
	}
	return c, nil
}

// MarshalText implements encoding.TextMarshaler.
func (c Context) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Context) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
