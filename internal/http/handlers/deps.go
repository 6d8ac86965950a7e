package handlers

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"tradepost/internal/config"
	"tradepost/internal/repos"
	"tradepost/internal/services"
)

// Deps is the wired service graph behind the HTTP handlers.
type Deps struct {
	Auth       *services.AuthService
	Ledger     *services.InventoryLedger
	Orders     *services.OrderService
	Dispatcher *services.NotificationDispatcher
	Promotions *services.PromotionService
	Inbox      *services.InboxService
	Outbox     *repos.OutboxRepo

	AuthHandler      *AuthHandler
	OrderHandler     *OrderHandler
	InventoryHandler *InventoryHandler
	PromotionHandler *PromotionHandler
	InboxHandler     *InboxHandler
	AdminHandler     *AdminHandler
}

func NewDeps(db *sqlx.DB, cfg config.Config, logger *zap.Logger) *Deps {
	if logger == nil {
		logger = zap.NewNop()
	}
	userRepo := repos.NewUserRepo(db)
	listingRepo := repos.NewListingRepo(db)
	orderRepo := repos.NewOrderRepo(db)
	msgRepo := repos.NewMessageRepo(db)
	noteRepo := repos.NewNotificationRepo(db)
	outboxRepo := repos.NewOutboxRepo(db)
	promoRepo := repos.NewPromotionRepo(db)
	statsRepo := repos.NewStatsRepo(db)

	authSvc := &services.AuthService{Users: userRepo}
	ledger := services.NewInventoryLedger(listingRepo, logger.Named("inventory"))
	dispatcher := services.NewNotificationDispatcher(db, msgRepo, noteRepo, outboxRepo, logger.Named("dispatch"))
	transitions := services.NewOrderStateMachine(db, orderRepo, listingRepo, ledger, dispatcher, logger.Named("orders"))
	rates := services.CommissionRates{Standard: cfg.StandardCommissionRate, Premium: cfg.PremiumCommissionRate}
	orderSvc := services.NewOrderService(db, listingRepo, userRepo, orderRepo, ledger, rates, dispatcher, transitions, logger.Named("orders"))
	promoSvc := services.NewPromotionService(db, promoRepo, statsRepo, listingRepo, userRepo, cfg.BoostDailyPrice, logger.Named("promotions"))
	inbox := &services.InboxService{Messages: msgRepo, Notifications: noteRepo}

	return &Deps{
		Auth:       authSvc,
		Ledger:     ledger,
		Orders:     orderSvc,
		Dispatcher: dispatcher,
		Promotions: promoSvc,
		Inbox:      inbox,
		Outbox:     outboxRepo,

		AuthHandler:      &AuthHandler{Auth: authSvc},
		OrderHandler:     &OrderHandler{Orders: orderSvc},
		InventoryHandler: &InventoryHandler{Ledger: ledger},
		PromotionHandler: &PromotionHandler{Promotions: promoSvc},
		InboxHandler:     &InboxHandler{Inbox: inbox},
		AdminHandler:     &AdminHandler{Orders: orderSvc},
	}
}
