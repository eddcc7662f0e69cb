// Package detector finds trading patterns worth alerting on: a single wallet
// quietly building a position (AccumulationDetector) and several skilled wallets
// buying the same token at once (ConfluenceDetector).
//
// Detectors are pure with respect to their inputs. Alerts are pushed to an
// AlertNotifier as a side effect; a failing notifier is logged and never changes
// the returned signals.
package detector

import (
	"context"
	"errors"

	"github.com/rewired-gh/whalescope/internal/models"
)

// AlertNotifier delivers pattern alerts to the outside world.
type AlertNotifier interface {
	NotifyAccumulation(ctx context.Context, walletID, token string, purchaseCount int) error
	NotifyConfluence(ctx context.Context, token string, wallets []models.WalletSummary, level ConfidenceLevel) error
}

// NopNotifier drops every alert.
type NopNotifier struct{}

func (NopNotifier) NotifyAccumulation(context.Context, string, string, int) error { return nil }

func (NopNotifier) NotifyConfluence(context.Context, string, []models.WalletSummary, ConfidenceLevel) error {
	return nil
}

// MultiNotifier fans an alert out to every notifier, attempting all of them
// and joining their errors.
type MultiNotifier []AlertNotifier

func (m MultiNotifier) NotifyAccumulation(ctx context.Context, walletID, token string, purchaseCount int) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyAccumulation(ctx, walletID, token, purchaseCount); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiNotifier) NotifyConfluence(ctx context.Context, token string, wallets []models.WalletSummary, level ConfidenceLevel) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyConfluence(ctx, token, wallets, level); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// orderedGroups buckets items by key, keeping keys in first-seen order.
type orderedGroups[T any] struct {
	order  []string
	groups map[string][]T
}

func groupBy[T any](items []T, key func(T) string) orderedGroups[T] {
	g := orderedGroups[T]{groups: make(map[string][]T)}
	for _, it := range items {
		k := key(it)
		if _, ok := g.groups[k]; !ok {
			g.order = append(g.order, k)
		}
		g.groups[k] = append(g.groups[k], it)
	}
	return g
}
