package ir

import (
	"fmt"
	"strings"
)

// Reserved anchor and group names.
const (
	// Wildcard anchors a group at the absolute top (above) or bottom (below).
	Wildcard = "*"
	// GroupPrefix marks an anchor that refers to another group.
	GroupPrefix = "group:"
	// BackgroundAnchor resolves to the top background layer of the current style.
	BackgroundAnchor = "$background"
	// UnassignedGroup always exists and is anchored above "*".
	UnassignedGroup = "$unassigned"
)

// Direction is the side of the anchor a group is placed on.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// AnchorKind classifies an anchor specifier.
type AnchorKind int

const (
	AnchorWildcard AnchorKind = iota + 1
	AnchorGroup
	AnchorBackground
	AnchorLayer
)

func (k AnchorKind) String() string {
	switch k {
	case AnchorWildcard:
		return "wildcard"
	case AnchorGroup:
		return "group"
	case AnchorBackground:
		return "background"
	case AnchorLayer:
		return "layer"
	default:
		return "unknown"
	}
}

// Anchor is the reference point of a group ordering: "*", "group:<name>",
// "$background", or a literal render-target layer id.
type Anchor string

// Kind classifies the anchor.
func (a Anchor) Kind() AnchorKind {
	switch {
	case a == Wildcard:
		return AnchorWildcard
	case strings.HasPrefix(string(a), GroupPrefix):
		return AnchorGroup
	case a == BackgroundAnchor:
		return AnchorBackground
	default:
		return AnchorLayer
	}
}

// GroupName returns the referenced group name for group anchors.
func (a Anchor) GroupName() string {
	return strings.TrimPrefix(string(a), GroupPrefix)
}

// GroupAnchor builds a "group:<name>" anchor.
func GroupAnchor(name string) Anchor {
	return Anchor(GroupPrefix + name)
}

// Ordering positions a group above or below an anchor.
type Ordering struct {
	Direction Direction `json:"direction" yaml:"direction"`
	Anchor    Anchor    `json:"anchor" yaml:"anchor"`
}

// Above places a group above the anchor.
func Above(anchor string) Ordering {
	return Ordering{Direction: DirectionAbove, Anchor: Anchor(anchor)}
}

// Below places a group below the anchor.
func Below(anchor string) Ordering {
	return Ordering{Direction: DirectionBelow, Anchor: Anchor(anchor)}
}

// String renders the ordering as "above:<anchor>".
func (o Ordering) String() string {
	return string(o.Direction) + ":" + string(o.Anchor)
}

// Validate checks the direction and that the anchor is non-empty.
func (o Ordering) Validate() error {
	if o.Direction != DirectionAbove && o.Direction != DirectionBelow {
		return fmt.Errorf("invalid ordering direction %q: must be above or below", o.Direction)
	}
	if o.Anchor == "" {
		return fmt.Errorf("ordering anchor is empty")
	}
	if o.Anchor.Kind() == AnchorGroup && o.Anchor.GroupName() == "" {
		return fmt.Errorf("group anchor %q names no group", o.Anchor)
	}
	return nil
}

// ParseOrdering parses "above:<anchor>" or "below:<anchor>".
func ParseOrdering(s string) (Ordering, error) {
	dir, anchor, ok := strings.Cut(s, ":")
	if !ok {
		return Ordering{}, fmt.Errorf("invalid ordering %q: expected above:<anchor> or below:<anchor>", s)
	}
	o := Ordering{Direction: Direction(dir), Anchor: Anchor(anchor)}
	if err := o.Validate(); err != nil {
		return Ordering{}, err
	}
	return o, nil
}
