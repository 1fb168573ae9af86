package aggregates

import (
	"fmt"
	"strings"
)

// WriteTxOwnership says who opens the write transaction.
type WriteTxOwnership string

const (
	// WriteTxOwnedByAggregate: the aggregate method opens and commits the
	// transaction; callers never pass one in.
	WriteTxOwnedByAggregate WriteTxOwnership = "aggregate_owned"
)

// ReadPolicy limits what an aggregate may read inside its transaction.
type ReadPolicy string

const (
	// ReadPolicyInvariantScoped allows only the reads a write decision needs.
	ReadPolicyInvariantScoped ReadPolicy = "invariant_scoped_reads"
)

// ReplayPolicy says what happens when the same write arrives twice.
type ReplayPolicy string

const (
	// ReplayConflict rejects the second call with CodeConflict.
	ReplayConflict ReplayPolicy = "replay_conflict"
	// ReplayNoop accepts the second call and writes nothing.
	ReplayNoop ReplayPolicy = "replay_noop"
)

type Contract struct {
	Name             string
	WriteTxOwnership WriteTxOwnership
	ReadPolicy       ReadPolicy
	Replay           ReplayPolicy
	// Tables are the tables a committed write may touch.
	Tables []string
	Notes  string
}

type Aggregate interface {
	Contract() Contract
}

func (c Contract) RequiresAggregateOwnedTx() bool {
	return c.WriteTxOwnership == WriteTxOwnedByAggregate
}

func (c Contract) Writes(table string) bool {
	for _, t := range c.Tables {
		if t == table {
			return true
		}
	}
	return false
}

func (c Contract) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("contract name is empty")
	}
	if !c.RequiresAggregateOwnedTx() {
		return fmt.Errorf("%s: write tx must be aggregate owned, got %q", c.Name, c.WriteTxOwnership)
	}
	switch c.Replay {
	case ReplayConflict, ReplayNoop:
	default:
		return fmt.Errorf("%s: unknown replay policy %q", c.Name, c.Replay)
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("%s: no tables declared", c.Name)
	}
	return nil
}
