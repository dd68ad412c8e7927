package session

import (
	"context"
	"net/url"
	"time"

	"github.com/datumcloud/datum-sync/internal/apperr"
	"github.com/datumcloud/datum-sync/internal/gateway"
	"github.com/datumcloud/datum-sync/internal/listing"
	"github.com/datumcloud/datum-sync/internal/models"
)

// RefreshDashboard replaces the dashboard snapshot from /datum/dashboard.
func (s *Session) RefreshDashboard(ctx context.Context, client *gateway.Client) error {
	params := url.Values{}
	params.Set("token", s.token)

	requestTime := time.Now()
	node, err := client.Request(ctx, apperr.ActionSectionList, gateway.PathDashboard, params)
	if err != nil {
		return err
	}

	snap := &models.DashboardSnapshot{RequestTime: requestTime}
	for _, in := range node.Objs("items") {
		snap.Items = append(snap.Items, models.DashboardItem{
			ID:         in.Str("id", ""),
			Name:       in.Str("name", ""),
			Kind:       in.Str("kind", ""),
			UpdateTime: in.Int64("updatetime", 0),
		})
	}
	s.SetDashboard(snap)
	return nil
}

// RefreshStorageNodes replaces the storage node list from /user/space.
func (s *Session) RefreshStorageNodes(ctx context.Context, client *gateway.Client) error {
	params := url.Values{}
	params.Set("token", s.token)

	node, err := client.Request(ctx, apperr.ActionAccountSpace, gateway.PathUserSpace, params)
	if err != nil {
		return err
	}

	var nodes []models.StorageNode
	for _, nn := range node.Objs("nodes") {
		nodes = append(nodes, models.StorageNode{
			ID:         nn.Str("id", ""),
			Name:       nn.Str("name", ""),
			Kind:       nn.Str("kind", ""),
			TotalBytes: nn.Int64("total", 0),
			FreeBytes:  nn.Int64("free", 0),
			Status:     nn.Str("status", ""),
		})
	}
	s.SetStorageNodes(nodes)
	return nil
}

// RefreshLibraries rebuilds the library list from the server roster.
// Containers for libraries that survive the refresh are rebuilt empty;
// their next Reload starts from a clean slate.
func (s *Session) RefreshLibraries(ctx context.Context) error {
	roster, err := s.fetcher.FetchLibraries(ctx)
	if err != nil {
		return err
	}

	libs := make([]*listing.Library, 0, len(roster))
	for _, li := range roster {
		libs = append(libs, listing.NewLibrary(li.ID, li.Name, s.fetcher, s.bus, s.pageSize))
	}
	s.SetLibraries(libs)
	return nil
}

// SectionProperty fetches the property sheet for one section.
func (s *Session) SectionProperty(ctx context.Context, id string) (*listing.SectionInfo, error) {
	return s.fetcher.FetchSectionInfo(ctx, id)
}
