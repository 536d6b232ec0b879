package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

// TargetKind distinguishes what a schedule entry or blocked interval belongs to.
type TargetKind string

const (
	TargetResource TargetKind = "resource"
	TargetAgent    TargetKind = "agent"
)

// Target names exactly one resource or one agent. The zero value is invalid.
type Target struct {
	kind TargetKind
	id   string
}

// ErrInvalidTarget is returned when a target cannot be parsed.
var ErrInvalidTarget = errors.New("scheduler: target must reference exactly one resource or agent")

// ResourceTarget targets a resource.
func ResourceTarget(id string) Target {
	return Target{kind: TargetResource, id: id}
}

// AgentTarget targets an agent.
func AgentTarget(id string) Target {
	return Target{kind: TargetAgent, id: id}
}

// TargetFromRefs builds a target from a pair of optional references, one of
// which must be set.
func TargetFromRefs(resourceID, agentID string) (Target, error) {
	resourceID = strings.TrimSpace(resourceID)
	agentID = strings.TrimSpace(agentID)
	switch {
	case resourceID != "" && agentID == "":
		return ResourceTarget(resourceID), nil
	case agentID != "" && resourceID == "":
		return AgentTarget(agentID), nil
	default:
		return Target{}, ErrInvalidTarget
	}
}

// Kind returns the target kind.
func (t Target) Kind() TargetKind { return t.kind }

// ID returns the referenced identifier.
func (t Target) ID() string { return t.id }

// Valid reports whether the target references something.
func (t Target) Valid() bool {
	return (t.kind == TargetResource || t.kind == TargetAgent) && t.id != ""
}

// IsResource reports whether the target is a resource.
func (t Target) IsResource() bool { return t.kind == TargetResource }

// IsAgent reports whether the target is an agent.
func (t Target) IsAgent() bool { return t.kind == TargetAgent }

func (t Target) String() string {
	if !t.Valid() {
		return "target(none)"
	}
	return fmt.Sprintf("%s:%s", t.kind, t.id)
}
