// Package cluster refreshes stored host records from the cluster
// directory. Host identity never changes here; only the volatile
// reachability fields are merged in.
package cluster

import (
	"context"
	"net/url"
	"time"

	"github.com/datumcloud/datum-sync/internal/apperr"
	"github.com/datumcloud/datum-sync/internal/events"
	"github.com/datumcloud/datum-sync/internal/gateway"
	"github.com/datumcloud/datum-sync/internal/jsontree"
	"github.com/datumcloud/datum-sync/internal/logging"
	"github.com/datumcloud/datum-sync/internal/models"
	"github.com/datumcloud/datum-sync/internal/store"
)

// Resolver performs cluster discovery for every cluster the store knows.
type Resolver struct {
	client *gateway.Client
	store  store.Store
	bus    *events.EventBus
	logger *logging.Logger
}

// NewResolver creates a resolver.
func NewResolver(client *gateway.Client, st store.Store, bus *events.EventBus, logger *logging.Logger) *Resolver {
	return &Resolver{client: client, store: st, bus: bus, logger: logger}
}

// Resolve queries /user/cluster for each known cluster id and merges the
// reported topology into the stored host records. When the gateway's
// current host appears in a response, its address is refreshed in place
// and a host-changed event is published. Failures on one cluster do not
// stop the others; the first error is returned.
func (r *Resolver) Resolve(ctx context.Context) error {
	ids, err := r.store.ClusterIDs()
	if err != nil {
		return apperr.Wrap(apperr.ActionHostInit, err)
	}

	var firstErr error
	for _, id := range ids {
		if err := r.resolveCluster(ctx, id); err != nil {
			r.logger.Warn().Err(err).Str("cluster", id).Msg("cluster discovery failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Resolver) resolveCluster(ctx context.Context, clusterID string) error {
	params := url.Values{}
	params.Set("action", gateway.ActionGet)
	params.Set("clusterid", clusterID)

	node, err := r.client.Request(ctx, apperr.ActionHostInit, gateway.PathUserCluster, params)
	if err != nil {
		return err
	}

	for _, hn := range node.Objs("hosts") {
		incoming := parseHost(hn, clusterID)
		if incoming.HostKey == "" {
			continue
		}
		// Offline hosts keep their last known-good address.
		if incoming.Status != models.HostStatusOK {
			continue
		}
		if err := r.applyHost(&incoming); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) applyHost(incoming *models.HostRecord) error {
	stored, ok, err := r.store.Host(incoming.ClusterID, incoming.HostKey)
	if err != nil {
		return apperr.Wrap(apperr.ActionHostInit, err)
	}
	if ok {
		stored.MergeVolatile(incoming)
	} else {
		stored = *incoming
	}
	if err := r.store.UpsertHost(stored); err != nil {
		return apperr.Wrap(apperr.ActionHostInit, err)
	}

	if cur := r.client.CurrentHost(); cur != nil && cur.SameIdentity(incoming) {
		cur.MergeVolatile(incoming)
		r.client.SetCurrentHost(cur)
		r.logger.Info().Str("host", cur.HostKey).Str("addr", cur.HostAddr).Msg("current host refreshed")
		if r.bus != nil {
			r.bus.Publish(&events.HostChangedEvent{
				BaseEvent: events.BaseEvent{EventType: events.EventHostChanged, Time: time.Now()},
				HostKey:   cur.HostKey,
				HostAddr:  cur.HostAddr,
				HTTPPort:  cur.HTTPPort,
			})
		}
	}
	return nil
}

func parseHost(n jsontree.Node, clusterID string) models.HostRecord {
	return models.HostRecord{
		ClusterID:     n.Str("clusterid", clusterID),
		ClusterDomain: n.Str("clusterdomain", ""),
		HostKey:       n.Str("hostkey", ""),
		HostName:      n.Str("hostname", ""),
		HostAddr:      n.Str("hostaddr", ""),
		LanAddr:       n.Str("lanaddr", ""),
		Domain:        n.Str("domain", ""),
		HTTPPort:      n.Int("httpport", 0),
		HTTPSPort:     n.Int("httpsport", 0),
		Status:        n.Str("status", ""),
		Heartbeat:     n.Int64("heartbeat", 0),
	}
}
