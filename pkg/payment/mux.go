package payment

import (
	"context"

	"github.com/voxley/billingkit/pkg/subscription"
)

// MuxGateway routes Gateway calls to the client registered for each
// provider. Providers without a registered client return
// ErrUnsupportedProvider, which keeps partially-configured deployments
// (e.g. card only) working for the providers they do have.
type MuxGateway struct {
	gateways map[subscription.Provider]Gateway
}

// NewMuxGateway builds a provider-routing gateway from the given clients.
func NewMuxGateway(gateways map[subscription.Provider]Gateway) *MuxGateway {
	cloned := make(map[subscription.Provider]Gateway, len(gateways))
	for p, g := range gateways {
		if g != nil {
			cloned[p] = g
		}
	}
	return &MuxGateway{gateways: cloned}
}

func (m *MuxGateway) route(provider subscription.Provider) (Gateway, error) {
	g, ok := m.gateways[provider]
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	return g, nil
}

func (m *MuxGateway) GetSubscription(ctx context.Context, provider subscription.Provider, providerSubID string) (*RemoteSubscription, error) {
	g, err := m.route(provider)
	if err != nil {
		return nil, err
	}
	return g.GetSubscription(ctx, provider, providerSubID)
}

func (m *MuxGateway) GetOrder(ctx context.Context, provider subscription.Provider, orderID string) (*RemoteOrder, error) {
	g, err := m.route(provider)
	if err != nil {
		return nil, err
	}
	return g.GetOrder(ctx, provider, orderID)
}

func (m *MuxGateway) CapturePayment(ctx context.Context, provider subscription.Provider, orderID string) (*RemoteOrder, error) {
	g, err := m.route(provider)
	if err != nil {
		return nil, err
	}
	return g.CapturePayment(ctx, provider, orderID)
}
