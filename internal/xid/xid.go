package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a prefixed unique id, e.g. "sale-0fc4…". The prefix makes ids
// self-describing in logs and ledger references.
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
