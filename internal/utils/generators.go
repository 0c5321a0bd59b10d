package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// OrderNumbers hands out time-ordered order numbers unique per node.
type OrderNumbers struct {
	node *snowflake.Node
}

func NewOrderNumbers(nodeID int64) (*OrderNumbers, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node %d: %w", nodeID, err)
	}
	return &OrderNumbers{node: node}, nil
}

func (g *OrderNumbers) Next() string {
	return "ORD-" + g.node.Generate().String()
}

// GeneratePaymentReference returns a code shaped like TCK12345678, the form customers
// type into the transfer note.
func GeneratePaymentReference() string {
	randomNum, err := rand.Int(rand.Reader, big.NewInt(100000000))
	if err != nil {
		return fmt.Sprintf("TCK%08d", uuid.New().ID()%100000000)
	}
	return fmt.Sprintf("TCK%08d", randomNum.Int64())
}

func GenerateTicketID() string {
	return uuid.NewString()
}
