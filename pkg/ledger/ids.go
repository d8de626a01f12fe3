package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EntityID identifies any ledger entity (account, token, file) in the form
// shard.realm.num.
type EntityID struct {
	Shard uint64
	Realm uint64
	Num   uint64
}

type (
	AccountID = EntityID
	TokenID   = EntityID
	FileID    = EntityID
)

// NewAccountID returns the id 0.0.num.
func NewAccountID(num uint64) AccountID {
	return AccountID{Num: num}
}

// ParseEntityID parses a string in the form shard.realm.num.
func ParseEntityID(str string) (EntityID, error) {
	parts := strings.Split(strings.TrimSpace(str), ".")
	if len(parts) != 3 {
		return EntityID{}, fmt.Errorf(
			"%w: %q must be in the form shard.realm.num", ErrInvalidEntityID, str,
		)
	}
	nums := make([]uint64, 0, 3)
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return EntityID{}, fmt.Errorf("%w: %q", ErrInvalidEntityID, str)
		}
		nums = append(nums, n)
	}
	return EntityID{nums[0], nums[1], nums[2]}, nil
}

func (id EntityID) String() string {
	return fmt.Sprintf("%d.%d.%d", id.Shard, id.Realm, id.Num)
}

func (id EntityID) IsZero() bool {
	return id == EntityID{}
}

// TransactionID is the ledger-level id of a transaction: the payer account
// plus the instant after which the network accepts it.
type TransactionID struct {
	Payer      AccountID
	ValidStart time.Time
}

func (id TransactionID) String() string {
	return fmt.Sprintf(
		"%s@%d.%09d", id.Payer, id.ValidStart.Unix(), id.ValidStart.Nanosecond(),
	)
}
