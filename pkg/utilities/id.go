package utilities

import (
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewUUID generates a random (v4) UUID string.
func NewUUID() string {
	return uuid.NewString()
}

// RequestIDs hands out snowflake ids from a single node so the sequence
// counter is shared across requests.
type RequestIDs struct {
	node *snowflake.Node
}

// NewRequestIDs builds a generator for the given node id. If the node cannot
// be initialized it falls back to KSUID strings.
func NewRequestIDs(nodeID int64) *RequestIDs {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return &RequestIDs{}
	}
	return &RequestIDs{node: node}
}

func (g *RequestIDs) Next() string {
	if g == nil || g.node == nil {
		return NewKSUID()
	}
	return g.node.Generate().String()
}
