package billing

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/voxley/billingkit/pkg/lifecycle"
	"github.com/voxley/billingkit/pkg/metering"
	"github.com/voxley/billingkit/pkg/revenue"
	"github.com/voxley/billingkit/pkg/subscription"
)

// RouterOptions wires the billing module's HTTP surface. Processor and
// Checker are required; webhook routes are mounted only for providers with
// a configured verifier, and the stats route only when an aggregator is
// provided.
type RouterOptions struct {
	Processor  *lifecycle.Processor
	Checker    *subscription.Checker
	Aggregator *revenue.Aggregator
	Meter      *metering.Meter

	CardVerifier         Verifier
	WalletVerifier       Verifier
	LegacyWalletVerifier Verifier

	Logger *slog.Logger
}

// Router creates the billing module router.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/billing", billing.Router(billing.RouterOptions{
//	    Processor:      processor,
//	    Checker:        checker,
//	    Aggregator:     aggregator,
//	    CardVerifier:   billing.NewHMACVerifier(cfg.CardSecret, "X-Card-Signature"),
//	    WalletVerifier: billing.NewHMACVerifier(cfg.WalletSecret, "X-Wallet-Signature"),
//	}))
func Router(opts RouterOptions) chi.Router {
	if opts.Processor == nil {
		panic("billing: processor is required")
	}
	if opts.Checker == nil {
		panic("billing: checker is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	h := &handlers{
		processor:  opts.Processor,
		checker:    opts.Checker,
		aggregator: opts.Aggregator,
		meter:      opts.Meter,
		log:        log,
	}

	r := chi.NewRouter()

	r.Route("/webhooks", func(w chi.Router) {
		if opts.CardVerifier != nil {
			w.Post("/card", h.webhook(opts.CardVerifier, parseCard))
		}
		if opts.WalletVerifier != nil {
			w.Post("/wallet", h.webhook(opts.WalletVerifier, parseWallet))
		}
		if opts.LegacyWalletVerifier != nil {
			w.Post("/legacy-wallet", h.webhook(opts.LegacyWalletVerifier, parseLegacyWallet))
		}
	})

	r.Get("/access/{userID}", h.access)

	if opts.Meter != nil {
		r.Route("/usage/{userID}", func(u chi.Router) {
			u.Post("/check", h.usageCheck)
			u.Post("/record", h.usageRecord)
		})
	}

	if opts.Aggregator != nil {
		r.Get("/stats/mrr", h.mrrStats)
	}

	return r
}
