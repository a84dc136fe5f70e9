package collection

import (
	"fmt"
	"sort"

	"github.com/at-ishikawa/ieltsnotes/internal/flatstore"
)

// KeyUsage is the space one key occupies.
type KeyUsage struct {
	Key   string
	Bytes int64
}

// Usage summarizes flat store consumption. It is for display only.
type Usage struct {
	UsedBytes  int64
	QuotaBytes int64
	Percent    float64
	PerKey     []KeyUsage
}

// EstimateUsage sums the size of every stored key and value, largest keys first.
func EstimateUsage(store flatstore.Store) (Usage, error) {
	keys, err := store.Keys()
	if err != nil {
		return Usage{}, fmt.Errorf("list keys: %w", err)
	}

	usage := Usage{QuotaBytes: store.Quota()}
	for _, key := range keys {
		value, ok, err := store.GetItem(key)
		if err != nil {
			return Usage{}, fmt.Errorf("read %q: %w", key, err)
		}
		if !ok {
			continue
		}
		size := flatstore.EntrySize(key, value)
		usage.UsedBytes += size
		usage.PerKey = append(usage.PerKey, KeyUsage{Key: key, Bytes: size})
	}
	sort.SliceStable(usage.PerKey, func(i, j int) bool {
		return usage.PerKey[i].Bytes > usage.PerKey[j].Bytes
	})
	if usage.QuotaBytes > 0 {
		usage.Percent = float64(usage.UsedBytes) / float64(usage.QuotaBytes) * 100
	}
	return usage, nil
}
