package api

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Dashboard is one saved dashboard definition.
type Dashboard struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	WidgetCount int       `json:"widget_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type dashboardList struct {
	Dashboards []Dashboard `json:"dashboards"`
}

// Annotation marks a point in time on a dashboard's charts.
type Annotation struct {
	ID          string    `json:"id"`
	DashboardID string    `json:"dashboard_id"`
	Text        string    `json:"text"`
	Tags        []string  `json:"tags,omitempty"`
	At          time.Time `json:"at"`
}

// AnnotationRequest is the payload for creating an annotation.
type AnnotationRequest struct {
	DashboardID string    `json:"dashboard_id"`
	Text        string    `json:"text"`
	Tags        []string  `json:"tags,omitempty"`
	At          time.Time `json:"at,omitempty"`
}

// ListDashboards returns all dashboards visible to the caller.
func (c *Client) ListDashboards(ctx context.Context) ([]Dashboard, error) {
	var list dashboardList
	if err := c.get(ctx, "/v1/dashboards", &list); err != nil {
		return nil, err
	}
	return list.Dashboards, nil
}

// GetDashboard fetches a single dashboard by id.
func (c *Client) GetDashboard(ctx context.Context, id string) (*Dashboard, error) {
	var d Dashboard
	if err := c.get(ctx, fmt.Sprintf("/v1/dashboards/%s", url.PathEscape(id)), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateAnnotation records an annotation. Write class: server errors are
// not retried, only timeouts and rate limiting are.
func (c *Client) CreateAnnotation(ctx context.Context, req AnnotationRequest) (*Annotation, error) {
	var a Annotation
	if err := c.post(ctx, "/v1/annotations", req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Health probes the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}
