package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/teamcart-backend/api/controllers"
	"github.com/angelmondragon/teamcart-backend/api/controllers/teamcarts"
	"github.com/angelmondragon/teamcart-backend/api/controllers/webhooks"
	"github.com/angelmondragon/teamcart-backend/api/middleware"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart/payments"
	"github.com/angelmondragon/teamcart-backend/pkg/config"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
)

// RouterParams carries everything the HTTP surface needs.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Engine   teamcarts.Engine
	Payments *payments.Consumer
	Gatherer prometheus.Gatherer
	Deps     map[string]controllers.Pinger
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Deps))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	if p.Payments != nil && cfg.Eventing.PaymentsWebhookSecret != "" {
		r.Route("/api/v1/webhooks", func(r chi.Router) {
			r.Post("/payments", webhooks.PaymentsWebhook(p.Payments, cfg.Eventing.PaymentsWebhookSecret, logg))
		})
	}

	r.Route("/api/v1/team-carts", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Post("/", teamcarts.Create(p.Engine, logg))
		r.Post("/join", teamcarts.Join(p.Engine, logg))

		r.Route("/{cartId}", func(r chi.Router) {
			r.Get("/", teamcarts.Get(p.Engine, logg))
			r.Post("/items", teamcarts.AddItem(p.Engine, logg))
			r.Patch("/items/{itemId}", teamcarts.UpdateQuantity(p.Engine, logg))
			r.Delete("/items/{itemId}", teamcarts.RemoveItem(p.Engine, logg))
			r.Put("/ready", teamcarts.SetReady(p.Engine, logg))
			r.Put("/coupon", teamcarts.ApplyCoupon(p.Engine, logg))
			r.Delete("/coupon", teamcarts.RemoveCoupon(p.Engine, logg))
			r.Put("/tip", teamcarts.SetTip(p.Engine, logg))
			r.Post("/lock", teamcarts.Lock(p.Engine, logg))
			r.Post("/payments/cash-on-delivery", teamcarts.CommitCashOnDelivery(p.Engine, logg))
			r.Post("/convert", teamcarts.Convert(p.Engine, logg))
			r.Post("/cancel", teamcarts.Cancel(p.Engine, logg))
		})
	})

	return r
}
