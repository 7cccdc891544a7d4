package publisher

import (
	"context"
	"strings"

	"github.com/geodatahub/geopublisher/core/infra/config"
	"github.com/geodatahub/geopublisher/core/infra/objstore"
)

// TriggerScanner enumerates pending trigger files in the bucket. It holds no
// state between scans; the bucket listing is the sole source of truth.
type TriggerScanner struct {
	store objstore.Store
}

func NewTriggerScanner(store objstore.Store) *TriggerScanner {
	return &TriggerScanner{store: store}
}

// Scan lists the bucket and returns the keys of pending triggers. Keys that
// already carry a terminal suffix never come back, no matter how often the
// scan repeats.
func (s *TriggerScanner) Scan(ctx context.Context) ([]string, error) {
	keys, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, key := range keys {
		if !strings.HasSuffix(key, config.PendingSuffix) {
			continue
		}
		if isTerminalKey(key) {
			continue
		}
		pending = append(pending, key)
	}
	return pending, nil
}

func isTerminalKey(key string) bool {
	return strings.HasSuffix(key, config.DoneSuffix) ||
		strings.HasSuffix(key, config.CorruptedSuffix) ||
		strings.HasSuffix(key, config.FailedSuffix) ||
		strings.HasSuffix(key, config.FailureReportSuffix)
}
