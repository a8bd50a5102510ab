package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	admincontrollers "github.com/angelmondragon/settlecore-backend/api/controllers/admin"
	ordercontrollers "github.com/angelmondragon/settlecore-backend/api/controllers/orders"
	walletcontrollers "github.com/angelmondragon/settlecore-backend/api/controllers/wallet"
	"github.com/angelmondragon/settlecore-backend/api/handlers"
	"github.com/angelmondragon/settlecore-backend/api/middleware"
	"github.com/angelmondragon/settlecore-backend/internal/audit"
	"github.com/angelmondragon/settlecore-backend/internal/disputes"
	"github.com/angelmondragon/settlecore-backend/internal/ledger"
	"github.com/angelmondragon/settlecore-backend/internal/orders"
	"github.com/angelmondragon/settlecore-backend/internal/platformconfig"
	"github.com/angelmondragon/settlecore-backend/internal/wallets"
	"github.com/angelmondragon/settlecore-backend/pkg/config"
	"github.com/angelmondragon/settlecore-backend/pkg/db"
	"github.com/angelmondragon/settlecore-backend/pkg/logger"
	"github.com/angelmondragon/settlecore-backend/pkg/redis"
)

// NewRouter mounts every HTTP surface of the settlement API. All /api/v1
// routes run behind bearer auth; money mutations additionally pass the
// idempotency layer, and the privileged money routes sit behind the step-up
// rate limit so password confirmation cannot be brute-forced.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	ledgerSvc ledger.Service,
	walletsSvc wallets.Service,
	ordersSvc orders.Service,
	disputesSvc disputes.Service,
	auditSvc audit.Service,
	configSvc platformconfig.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	stepUpPolicy := middleware.NewAdminRateLimitPolicy(
		"step-up",
		cfg.AdminRateLimit.StepUpWindow,
		cfg.AdminRateLimit.StepUpIPLimit,
		cfg.AdminRateLimit.StepUpAdminLimit,
	)
	stepUpLimit := middleware.AdminRateLimit(stepUpPolicy, redisClient, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", handlers.HealthLive(cfg))
		r.Get("/ready", handlers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/balance", walletcontrollers.Balance(walletsSvc, logg))
			r.Get("/history", walletcontrollers.History(walletsSvc, logg))
			r.Post("/deposit", walletcontrollers.Deposit(walletsSvc, logg))
			r.Route("/withdrawals", func(r chi.Router) {
				r.Get("/", walletcontrollers.ListWithdrawals(walletsSvc, logg))
				r.Post("/", walletcontrollers.RequestWithdrawal(walletsSvc, logg))
				r.Post("/{withdrawalId}/cancel", walletcontrollers.CancelWithdrawal(walletsSvc, logg))
			})
			r.Post("/giftcards/redeem", walletcontrollers.RedeemGiftCard(walletsSvc, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(ordersSvc, logg))
			r.Post("/", ordercontrollers.Create(ordersSvc, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
			r.Get("/{orderId}/ledger", ordercontrollers.LedgerEntries(ordersSvc, ledgerSvc, logg))
			r.Post("/{orderId}/deliver", ordercontrollers.Deliver(ordersSvc, logg))
			r.Post("/{orderId}/complete", ordercontrollers.Complete(ordersSvc, logg))
			r.Post("/{orderId}/dispute", ordercontrollers.Dispute(ordersSvc, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersSvc, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))

			r.Route("/disputes", func(r chi.Router) {
				r.Get("/", admincontrollers.ListDisputes(ordersSvc, logg))
				r.With(stepUpLimit).Post("/{orderId}/resolve", admincontrollers.ResolveDispute(disputesSvc, logg))
			})

			r.Route("/orders/{orderId}", func(r chi.Router) {
				r.With(stepUpLimit).Post("/force-complete", admincontrollers.ForceComplete(disputesSvc, logg))
				r.With(stepUpLimit).Post("/force-refund", admincontrollers.ForceRefund(disputesSvc, logg))
				r.Post("/extend-dispute-window", admincontrollers.ExtendDisputeWindow(ordersSvc, logg))
			})

			r.Route("/withdrawals", func(r chi.Router) {
				r.Get("/", admincontrollers.ListWithdrawals(walletsSvc, logg))
				r.With(stepUpLimit).Post("/{withdrawalId}/process", admincontrollers.ProcessWithdrawal(walletsSvc, logg))
			})

			r.Route("/wallets/{accountId}", func(r chi.Router) {
				r.With(stepUpLimit).Post("/credit", admincontrollers.Credit(walletsSvc, logg))
				r.With(stepUpLimit).Post("/debit", admincontrollers.Debit(walletsSvc, logg))
				r.With(stepUpLimit).Post("/freeze", admincontrollers.Freeze(walletsSvc, logg))
				r.With(stepUpLimit).Post("/unfreeze", admincontrollers.Unfreeze(walletsSvc, logg))
				r.Get("/balance", admincontrollers.Balance(walletsSvc, logg))
				r.Get("/history", admincontrollers.History(walletsSvc, logg))
			})

			r.With(stepUpLimit).Post("/giftcards", admincontrollers.IssueGiftCard(walletsSvc, logg))

			r.Get("/actions", admincontrollers.ListActions(auditSvc, logg))

			r.Route("/config", func(r chi.Router) {
				r.Get("/", admincontrollers.ListConfig(configSvc, logg))
				r.Put("/{key}", admincontrollers.UpdateConfig(configSvc, logg))
			})
		})
	})

	return r
}
