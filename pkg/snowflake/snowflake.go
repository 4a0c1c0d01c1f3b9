package snowflake

import (
	"fmt"
	"strings"

	bsnowflake "github.com/bwmarrin/snowflake"
)

// PurchaseNoPrefix starts every human-facing purchase number
const PurchaseNoPrefix = "GS"

// IDGenerator hands out time-ordered ids unique per node
type IDGenerator struct {
	node *bsnowflake.Node
}

// ID is one generated id with its display form
type ID struct {
	Value uint64
	No    string
}

// NewIDGenerator creates a generator for nodeID (0-1023)
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := bsnowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

// NextID generates a new ID
func (g *IDGenerator) NextID() ID {
	id := g.node.Generate()
	return ID{
		Value: uint64(id.Int64()),
		No:    PurchaseNoPrefix + strings.ToUpper(id.Base36()),
	}
}
