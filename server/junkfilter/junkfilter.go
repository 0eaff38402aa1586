// Package junkfilter decides per recipient whether an inbound message is
// junk, based on the recipient's safe and blocked sender lists.
package junkfilter

import (
	"context"
	"fmt"

	"github.com/okapimail/okapi/helpers"
	"github.com/okapimail/okapi/pkg/metrics"
)

// Store is the persistence surface the filter needs.
type Store interface {
	IsSafeSender(ctx context.Context, userAddress, sender string) (bool, error)
	IsBlockedSender(ctx context.Context, userAddress, sender string) (bool, error)
}

// Filter classifies senders against a recipient's lists. The safe list is
// consulted first: a sender on both lists is treated as safe.
type Filter struct {
	store Store
}

func New(store Store) *Filter {
	return &Filter{store: store}
}

// IsJunk reports whether mail from sender should be filed as junk for the
// given recipient. Unknown senders are not junk.
func (f *Filter) IsJunk(ctx context.Context, userAddress, sender string) (bool, error) {
	sender = helpers.NormalizeAddress(sender)
	if sender == "" {
		metrics.JunkClassifications.WithLabelValues("clean").Inc()
		return false, nil
	}

	safe, err := f.store.IsSafeSender(ctx, userAddress, sender)
	if err != nil {
		return false, fmt.Errorf("failed to check safe list: %w", err)
	}
	if safe {
		metrics.JunkClassifications.WithLabelValues("safe").Inc()
		return false, nil
	}

	blocked, err := f.store.IsBlockedSender(ctx, userAddress, sender)
	if err != nil {
		return false, fmt.Errorf("failed to check block list: %w", err)
	}
	if blocked {
		metrics.JunkClassifications.WithLabelValues("junk").Inc()
		return true, nil
	}

	metrics.JunkClassifications.WithLabelValues("clean").Inc()
	return false, nil
}
