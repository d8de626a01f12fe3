package cached_directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cosigner/internal/core/ports"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

const (
	DefaultTTL = time.Minute

	numCounters = 1e5
	maxCost     = 1e4
	bufferItems = 64
)

// directory resolves account and node keys through the ledger client and
// keeps them in a ristretto cache for ttl.
type directory struct {
	client ports.LedgerClient
	cache  *ristretto.Cache
	ttl    time.Duration

	log func(format string, a ...interface{})
}

func NewAccountDirectory(
	client ports.LedgerClient, ttl time.Duration,
) (ports.AccountDirectory, error) {
	if client == nil {
		return nil, fmt.Errorf("missing ledger client")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("account directory: %s", format)
		log.Debugf(format, a...)
	}

	return &directory{client, cache, ttl, logFn}, nil
}

func (d *directory) GetAccountInfo(
	ctx context.Context, network string, account ledger.AccountID,
) (*ports.AccountInfo, error) {
	key := accountCacheKey(network, account)
	if cached, ok := d.cache.Get(key); ok {
		info := *cached.(*ports.AccountInfo)
		return &info, nil
	}

	info, err := d.client.GetAccountInfo(ctx, network, account)
	if err != nil {
		if hasStatus(err, ledger.StatusInvalidAccountID, ledger.StatusAccountDeleted) {
			return nil, fmt.Errorf("%w: %s", ports.ErrAccountNotFound, account)
		}
		return nil, err
	}
	if info == nil || info.Key == nil {
		return nil, fmt.Errorf("%w: %s has no key", ports.ErrAccountNotFound, account)
	}
	d.cache.SetWithTTL(key, info, 1, d.ttl)
	d.log("cached info for account %s on %s", account, network)

	cp := *info
	return &cp, nil
}

func (d *directory) GetNodeAdminKey(
	ctx context.Context, network string, nodeID uint64,
) (ledger.Key, error) {
	key := nodeCacheKey(network, nodeID)
	if cached, ok := d.cache.Get(key); ok {
		return cached.(ledger.Key), nil
	}

	info, err := d.client.GetNodeInfo(ctx, network, nodeID)
	if err != nil {
		if hasStatus(err, ledger.StatusInvalidNodeAccount) {
			return nil, fmt.Errorf("%w: %d", ports.ErrNodeNotFound, nodeID)
		}
		return nil, err
	}
	if info == nil || info.AdminKey == nil {
		return nil, fmt.Errorf("%w: %d has no admin key", ports.ErrNodeNotFound, nodeID)
	}
	d.cache.SetWithTTL(key, info.AdminKey, 1, d.ttl)
	return info.AdminKey, nil
}

func (d *directory) InvalidateAccount(
	_ context.Context, network string, account ledger.AccountID,
) error {
	d.cache.Del(accountCacheKey(network, account))
	d.log("invalidated account %s on %s", account, network)
	return nil
}

func accountCacheKey(network string, account ledger.AccountID) string {
	return fmt.Sprintf("account:%s:%s", network, account)
}

func nodeCacheKey(network string, nodeID uint64) string {
	return fmt.Sprintf("node:%s:%d", network, nodeID)
}

// hasStatus returns whether err is a network response with one of the given
// statuses.
func hasStatus(err error, statuses ...ledger.Status) bool {
	var statusErr *ledger.StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	for _, s := range statuses {
		if statusErr.Status == s {
			return true
		}
	}
	return false
}
