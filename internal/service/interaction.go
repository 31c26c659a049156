package service

import (
	"context"
	"log/slog"

	"github.com/townsquareapp/townsquare-server/internal/counter"
	"github.com/townsquareapp/townsquare-server/internal/domain"
	"github.com/townsquareapp/townsquare-server/internal/events"
	"github.com/townsquareapp/townsquare-server/internal/listcache"
	"github.com/townsquareapp/townsquare-server/internal/membership"
)

// ToggleResult is the outcome of a membership toggle.
type ToggleResult struct {
	TargetID string `json:"target_id"`
	Member   bool   `json:"member"`
	// Count is the target's counter after the toggle, when it has one.
	Count *int `json:"count,omitempty"`
	// CounterSynced is false when the membership changed but the counter
	// update failed; the next refresh shows the stored value.
	CounterSynced bool `json:"counter_synced"`
	// Refreshed is false when the list refetch after the toggle failed.
	Refreshed bool `json:"refreshed"`
}

// interaction ties a membership set to an optional counter and the list that
// is refetched after every successful toggle.
type interaction[T listcache.Item] struct {
	set     *membership.Set
	counter *counter.Reconciler
	list    *listcache.List[T]
}

func (i interaction[T]) toggle(ctx context.Context, actor domain.Actor, targetID string, p events.Publisher, logger *slog.Logger) (*ToggleResult, error) {
	var res *ToggleResult
	_, err := i.set.ToggleThen(ctx, actor, targetID, func(ctx context.Context, change membership.Change) {
		res = i.settle(ctx, actor, change, p, logger)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// settle applies the counter delta, refetches the list and publishes the
// change. It runs under the target lock.
func (i interaction[T]) settle(ctx context.Context, actor domain.Actor, change membership.Change, p events.Publisher, logger *slog.Logger) *ToggleResult {
	res := &ToggleResult{TargetID: change.TargetID, Member: change.Member, CounterSynced: true}

	var written *int
	if i.counter != nil && change.Delta != 0 {
		n, err := i.counter.ApplyDelta(ctx, change.TargetID, change.Delta)
		if err != nil {
			res.CounterSynced = false
			logger.Warn("membership changed but counter update failed",
				"user_id", actor.UserID, "target_id", change.TargetID, "delta", change.Delta, "error", err)
		} else {
			written = &n
		}
	}

	if i.list != nil {
		res.Refreshed = i.list.FetchAll(ctx) == nil
	}

	if i.counter != nil {
		if n, ok := i.listCounter(change.TargetID); ok && res.Refreshed {
			res.Count = &n
		} else {
			res.Count = written
		}
	}

	publish(ctx, p, logger, events.TypeMembershipToggled, events.MembershipToggled{
		UserID:   actor.UserID,
		TargetID: change.TargetID,
		Kind:     change.Kind,
		Member:   change.Member,
		Delta:    change.Delta,
	})
	return res
}

func (i interaction[T]) listCounter(targetID string) (int, bool) {
	if i.list == nil || i.counter == nil {
		return 0, false
	}
	return i.list.Counter(targetID, i.counter.Config().Column)
}
