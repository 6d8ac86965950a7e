package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tradepost/internal/domain"
	"tradepost/internal/repos"
)

const (
	day = 24 * time.Hour

	maxBoostDays = 30
	minUplift    = -99
	maxUplift    = 999
	refreshLimit = 4
	ctrFloorPct  = 1.0
)

// upliftInput is everything the uplift figures depend on.
type upliftInput struct {
	BoostDays      int
	BaselineViews  int64
	BaselineClicks int64
	BoostViews     int64
	BoostClicks    int64
}

// boostDays counts calendar days touched by the window, at least one.
func boostDays(start, end time.Time) int {
	n := int(math.Ceil(end.Sub(start).Hours()/24)) + 1
	if n < 1 {
		return 1
	}
	return n
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

func clampUplift(f float64) int {
	v := math.Round(f)
	if v < minUplift {
		return minUplift
	}
	if v > maxUplift {
		return maxUplift
	}
	return int(v)
}

// computeUplift compares the boost window against the equally long baseline
// before it. The baseline is floored at one view per day so a quiet listing
// cannot produce an unbounded percentage.
func computeUplift(in upliftInput) domain.Uplift {
	days := float64(in.BoostDays)
	if days < 1 {
		days = 1
	}

	floored := math.Max(float64(in.BaselineViews), days)
	baselineDaily := math.Max(1, floored/days)
	boostDaily := float64(in.BoostViews) / days

	var baselineCTR, boostCTR float64
	if in.BaselineViews > 0 {
		baselineCTR = round2(float64(in.BaselineClicks) / float64(in.BaselineViews) * 100)
	}
	if baselineCTR == 0 && in.BaselineClicks > 0 {
		baselineCTR = ctrFloorPct
	}
	if in.BoostViews > 0 {
		boostCTR = round2(float64(in.BoostClicks) / float64(in.BoostViews) * 100)
	}

	var out domain.Uplift
	if in.BoostViews > 0 {
		out.ViewUpliftPercent = clampUplift((boostDaily - baselineDaily) / baselineDaily * 100)
	}
	if baselineCTR > 0 && in.BoostViews > 0 {
		out.ClickUpliftPercent = clampUplift((boostCTR - baselineCTR) / baselineCTR * 100)
	}
	return out
}

// StartBoostCommand asks for a boost on one of the seller's listings.
type StartBoostCommand struct {
	SellerID      int64
	ListingID     int64
	Days          int
	UseFreeCredit bool
}

// PromotionService runs listing boosts and their uplift analysis.
type PromotionService struct {
	DB         *sqlx.DB
	Promotions *repos.PromotionRepo
	Stats      *repos.StatsRepo
	Listings   *repos.ListingRepo
	Users      *repos.UserRepo
	DailyPrice decimal.Decimal
	Log        *zap.Logger
	Now        func() time.Time
}

func NewPromotionService(db *sqlx.DB, promotions *repos.PromotionRepo, stats *repos.StatsRepo,
	listings *repos.ListingRepo, users *repos.UserRepo, dailyPrice decimal.Decimal, log *zap.Logger) *PromotionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PromotionService{
		DB: db, Promotions: promotions, Stats: stats, Listings: listings, Users: users,
		DailyPrice: dailyPrice, Log: log, Now: time.Now,
	}
}

func (s *PromotionService) get(ctx context.Context, id int64) (*domain.Promotion, error) {
	p, err := s.Promotions.Get(ctx, id)
	if errors.Is(err, repos.ErrNotFound) {
		return nil, ErrPromotionNotFound
	}
	return p, err
}

// ComputeUplift recomputes and stores a promotion's uplift percentages.
func (s *PromotionService) ComputeUplift(ctx context.Context, promotionID int64) (domain.Uplift, error) {
	p, err := s.get(ctx, promotionID)
	if err != nil {
		return domain.Uplift{}, err
	}

	now := s.Now().UTC()
	end := now
	if p.EndsAt != nil && p.EndsAt.Before(now) {
		end = *p.EndsAt
	}
	days := boostDays(p.StartedAt, end)
	baselineStart := p.StartedAt.Add(-time.Duration(days) * day)

	views, clicks, err := s.Stats.SumRange(ctx, p.ListingID, baselineStart, p.StartedAt)
	if err != nil {
		return domain.Uplift{}, err
	}

	u := computeUplift(upliftInput{
		BoostDays:      days,
		BaselineViews:  views,
		BaselineClicks: clicks,
		BoostViews:     p.Views,
		BoostClicks:    p.Clicks,
	})
	if err := s.Promotions.SaveUplift(ctx, p.ID, u); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return domain.Uplift{}, ErrPromotionNotFound
		}
		return domain.Uplift{}, err
	}
	s.Log.Debug("promotion.uplift",
		zap.Int64("promotionId", p.ID), zap.Int("boostDays", days),
		zap.Int("viewUplift", u.ViewUpliftPercent), zap.Int("clickUplift", u.ClickUpliftPercent))
	return u, nil
}

// UpliftFor computes uplift for a promotion the actor owns (admins may read any).
func (s *PromotionService) UpliftFor(ctx context.Context, actor domain.Actor, promotionID int64) (domain.Uplift, error) {
	p, err := s.get(ctx, promotionID)
	if err != nil {
		return domain.Uplift{}, err
	}
	if p.SellerID != actor.UserID && !actor.IsAdmin() {
		return domain.Uplift{}, ErrNotPromotionOwner
	}
	return s.ComputeUplift(ctx, promotionID)
}

// RefreshSellerPromotions expires ended boosts, recomputes uplift for every
// promotion of the seller and returns the fresh rows.
func (s *PromotionService) RefreshSellerPromotions(ctx context.Context, sellerID int64) ([]domain.Promotion, error) {
	if _, err := s.Promotions.ExpireEnded(ctx, sellerID, s.Now().UTC()); err != nil {
		return nil, err
	}
	promos, err := s.Promotions.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshLimit)
	for _, p := range promos {
		id := p.ID
		g.Go(func() error {
			_, err := s.ComputeUplift(gctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s.Promotions.ListBySeller(ctx, sellerID)
}

// StartBoost puts an ACTIVE promotion on a listing the seller owns.
func (s *PromotionService) StartBoost(ctx context.Context, cmd StartBoostCommand) (*domain.Promotion, error) {
	if cmd.Days < 1 || cmd.Days > maxBoostDays {
		return nil, ErrInvalidBoostDuration
	}
	listing, err := s.Listings.Get(ctx, cmd.ListingID)
	if errors.Is(err, repos.ErrNotFound) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	if listing.SellerID != cmd.SellerID {
		return nil, ErrNotListingOwner
	}
	if !listing.Listed {
		return nil, ErrListingNotListed
	}

	now := s.Now().UTC()
	if _, err := s.Promotions.ExpireEnded(ctx, cmd.SellerID, now); err != nil {
		return nil, err
	}

	var promo *domain.Promotion
	err = repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		paid := s.DailyPrice.Mul(decimal.NewFromInt(int64(cmd.Days))).Round(2)
		if cmd.UseFreeCredit {
			claimed, err := s.Users.WithTx(tx).ClaimFreeBoost(ctx, cmd.SellerID)
			if err != nil {
				return err
			}
			if !claimed {
				return ErrFreeBoostUsed
			}
			paid = decimal.Zero
		}

		ends := now.Add(time.Duration(cmd.Days) * day)
		promos := s.Promotions.WithTx(tx)
		id, err := promos.Create(ctx, domain.Promotion{
			ListingID:      listing.ID,
			SellerID:       cmd.SellerID,
			Status:         domain.PromotionActive,
			StartedAt:      now,
			EndsAt:         &ends,
			UsedFreeCredit: cmd.UseFreeCredit,
			PaidAmount:     paid,
			CreatedAt:      now,
		})
		if errors.Is(err, repos.ErrAlreadyActive) {
			return ErrPromotionAlreadyActive
		}
		if err != nil {
			return err
		}
		promo, err = promos.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("promotion.started",
		zap.Int64("promotionId", promo.ID), zap.Int64("listingId", promo.ListingID),
		zap.Int("days", cmd.Days), zap.Bool("freeCredit", promo.UsedFreeCredit),
		zap.String("paid", promo.PaidAmount.StringFixed(2)))
	return promo, nil
}

// RecordView counts one view of a listing.
func (s *PromotionService) RecordView(ctx context.Context, listingID int64) error {
	return s.recordTraffic(ctx, listingID, 1, 0)
}

// RecordClick counts one click on a listing.
func (s *PromotionService) RecordClick(ctx context.Context, listingID int64) error {
	return s.recordTraffic(ctx, listingID, 0, 1)
}

func (s *PromotionService) recordTraffic(ctx context.Context, listingID int64, views, clicks int64) error {
	if _, err := s.Listings.Get(ctx, listingID); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return ErrListingNotFound
		}
		return err
	}
	now := s.Now().UTC()
	return repos.InTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		if err := s.Stats.WithTx(tx).Record(ctx, listingID, now, views, clicks); err != nil {
			return err
		}
		return s.Promotions.WithTx(tx).CountTraffic(ctx, listingID, views, clicks, now)
	})
}
