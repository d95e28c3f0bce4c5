package amqp

import (
	"context"

	"github.com/hiwllc/tracker/internal/services"
)

// Revalidator adapts the AMQP client to the services.Revalidator port.
type Revalidator struct {
	client *Client
}

var _ services.Revalidator = (*Revalidator)(nil)

func NewRevalidator(client *Client) *Revalidator {
	return &Revalidator{client: client}
}

func (r *Revalidator) DashboardStale(ctx context.Context, user string) error {
	return r.client.PublishDashboardStale(ctx, user)
}
