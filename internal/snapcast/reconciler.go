package snapcast

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/domain"
	"github.com/snapdog-io/integration-core/internal/zonestore"
)

// reconcileInterval is the tick period for EnsureGrouping. Snapcast has
// no explicit create-group RPC, so zones are matched to existing groups
// by name and renamed on drift rather than created/destroyed.
const reconcileInterval = "@every 30s"

// Reconciler periodically reconciles configured zones against the
// Snapcast groups mirrored in the repository, associating each zone with
// the group whose name matches, and renaming a drifted group back in line.
type Reconciler struct {
	service *Service
	zones   *zonestore.Store
	logger  *zap.Logger
	cron    *cron.Cron
}

// NewReconciler builds a Reconciler. Start begins the periodic tick.
func NewReconciler(service *Service, zones *zonestore.Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{service: service, zones: zones, logger: logger, cron: cron.New()}
}

// Start schedules the reconciliation tick and runs it once immediately so
// zone<->group associations exist before the first command is handled.
func (r *Reconciler) Start(ctx context.Context) error {
	r.EnsureGrouping(ctx)
	_, err := r.cron.AddFunc(reconcileInterval, func() { r.EnsureGrouping(ctx) })
	if err != nil {
		return fmt.Errorf("schedule reconciliation tick: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight tick to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

// EnsureGrouping matches every configured zone to a Snapcast group by
// name: if a group already named after the zone exists, it is adopted; if
// the zone's currently-associated group has since been renamed elsewhere,
// the name is pushed back (rename-on-drift, never create/destroy, since
// Snapcast's protocol has no Group.Create/Delete — groups come and go with
// client connections).
func (r *Reconciler) EnsureGrouping(ctx context.Context) {
	groups := r.service.repo.AllGroups()
	byName := make(map[string]domain.SnapcastGroup, len(groups))
	byID := make(map[domain.GroupID]domain.SnapcastGroup, len(groups))
	for _, g := range groups {
		byName[g.Name] = g
		byID[g.ID] = g
	}

	for _, zone := range r.zones.All() {
		if zone.HasGroup() {
			g, stillExists := byID[zone.AssociatedGroupID]
			if !stillExists {
				r.zones.SetAssociatedGroup(zone.Index, "", false)
			} else if g.Name != zone.Name {
				res := r.service.SetGroupName(ctx, g.ID, zone.Name)
				if !res.IsOk() {
					r.logger.Warn("failed to rename drifted group",
						zap.Int("zone", int(zone.Index)), zap.String("group", string(g.ID)), zap.Error(res.Error()))
					continue
				}
			}
			continue
		}

		if g, ok := byName[zone.Name]; ok {
			r.zones.SetAssociatedGroup(zone.Index, g.ID, true)
			continue
		}

		r.logger.Debug("no snapcast group yet for zone, will retry next tick",
			zap.Int("zone", int(zone.Index)), zap.String("zoneName", zone.Name))
	}
}
