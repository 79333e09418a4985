package statistics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/pkg/types"
)

type StatisticType string

const (
	StatisticTypeTotalMemberCount     StatisticType = "total_member_count"
	StatisticTypeMemberCountByTier    StatisticType = "member_count_by_tier"
	StatisticTypeDailyMintCount       StatisticType = "daily_mint_count"
	StatisticTypeLinkedCardCount      StatisticType = "linked_card_count"
	StatisticTypeSessionCountByStatus StatisticType = "session_count_by_status"
	StatisticTypeDailyRevenue         StatisticType = "daily_revenue"
)

type StatisticFilterType string

const (
	StatisticFilterTypeTier     StatisticFilterType = "tier"
	StatisticFilterTypeCurrency StatisticFilterType = "currency"
)

var allStatistics = []StatisticType{
	StatisticTypeTotalMemberCount, StatisticTypeMemberCountByTier, StatisticTypeDailyMintCount,
	StatisticTypeLinkedCardCount, StatisticTypeSessionCountByStatus, StatisticTypeDailyRevenue,
}

// validFilters lists the statistics each filter applies to. A statistic
// requested together with a filter it cannot honor comes back empty.
var validFilters = map[StatisticFilterType][]StatisticType{
	StatisticFilterTypeTier: {
		StatisticTypeTotalMemberCount, StatisticTypeMemberCountByTier, StatisticTypeDailyMintCount,
		StatisticTypeSessionCountByStatus, StatisticTypeDailyRevenue,
	},
	StatisticFilterTypeCurrency: {StatisticTypeDailyRevenue},
}

type StatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type StatisticRequest struct {
	Filters   types.CommonFilters  `json:"filters"`
	DataItems []*StatisticDataItem `json:"data_items"`
}

func (r *StatisticRequest) Validate() error {
	if r == nil || len(r.DataItems) == 0 {
		return fmt.Errorf("data_items is required")
	}
	for _, di := range r.DataItems {
		if di == nil || !lo.Contains(allStatistics, di.ID) {
			return fmt.Errorf("invalid data item id: %v", lo.FromPtr(di).ID)
		}
	}
	allowed := lo.Map(lo.Keys(validFilters), func(k StatisticFilterType, _ int) string { return string(k) })
	return r.Filters.Validate(allowed...)
}

// applicable reports whether every filter in r can be applied to st.
func (r *StatisticRequest) applicable(st StatisticType) bool {
	for _, f := range r.Filters {
		if f == nil {
			continue
		}
		if !lo.Contains(validFilters[StatisticFilterType(f.Field)], st) {
			return false
		}
	}
	return true
}

func (r *StatisticRequest) where() clause.Expression {
	return clause.Where{Exprs: []clause.Expression{r.Filters}}
}

type StatisticResponseDataItem struct {
	Date   string `json:"date,omitempty"`
	Label  string `json:"label,omitempty"`
	Value  int64  `json:"value"`
	Value2 int64  `json:"value2,omitempty"`
}

type StatisticResponse struct {
	DataItems map[StatisticType][]StatisticResponseDataItem `json:"data_items"`
}

// Service computes admin dashboard statistics from committed state.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) getTotalMemberCount(ctx context.Context, req *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var active, total int64
	q := s.db.WithContext(ctx).Model(&models.MembershipToken{}).Where(req.where())
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.MembershipToken{}).Where(req.where()).Where("active = ?", true).Count(&active).Error; err != nil {
		return nil, err
	}
	return []StatisticResponseDataItem{{Value: active, Value2: total}}, nil
}

type tierCount struct {
	Tier  types.Tier
	Count int64
}

func (s *Service) getMemberCountByTier(ctx context.Context, req *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var rows []tierCount
	err := s.db.WithContext(ctx).Model(&models.MembershipToken{}).
		Select("tier, count(*) as count").
		Where(req.where()).
		Where("active = ?", true).
		Group("tier").
		Order("tier").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r tierCount, _ int) StatisticResponseDataItem {
		return StatisticResponseDataItem{Label: r.Tier.String(), Value: r.Count}
	}), nil
}

// getDailyMintCount buckets mints by UTC day in Go so the query stays
// portable across SQL dialects.
func (s *Service) getDailyMintCount(ctx context.Context, req *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var mintedAt []time.Time
	err := s.db.WithContext(ctx).Model(&models.MembershipToken{}).
		Where(req.where()).
		Pluck("minted_at", &mintedAt).Error
	if err != nil {
		return nil, err
	}
	counts := lo.CountValuesBy(mintedAt, func(t time.Time) string { return t.UTC().Format(time.DateOnly) })
	return sortedByDateDesc(lo.MapToSlice(counts, func(day string, n int) StatisticResponseDataItem {
		return StatisticResponseDataItem{Date: day, Value: int64(n)}
	})), nil
}

func (s *Service) getLinkedCardCount(ctx context.Context, _ *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var linked, active int64
	q := s.db.WithContext(ctx).Model(&models.NFCCard{}).Where("token_id IS NOT NULL")
	if err := q.Count(&linked).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.NFCCard{}).Where("token_id IS NOT NULL AND is_active = ?", true).Count(&active).Error; err != nil {
		return nil, err
	}
	return []StatisticResponseDataItem{{Value: linked, Value2: active}}, nil
}

func (s *Service) getSessionCountByStatus(ctx context.Context, req *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	err := s.db.WithContext(ctx).Model(&models.PaymentSession{}).
		Select("status as label, count(*) as value").
		Where(req.where()).
		Group("status").
		Order("status").
		Scan(&results).Error
	return results, err
}

// getDailyRevenue sums completed session amounts per UTC day and currency.
func (s *Service) getDailyRevenue(ctx context.Context, req *StatisticRequest) ([]StatisticResponseDataItem, error) {
	var sessions []models.PaymentSession
	err := s.db.WithContext(ctx).Model(&models.PaymentSession{}).
		Select("amount, currency, updated_at").
		Where(req.where()).
		Where("status = ?", types.PaymentSessionStatusCompleted).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	type key struct{ day, currency string }
	sums := map[key]int64{}
	for _, sess := range sessions {
		sums[key{sess.UpdatedAt.UTC().Format(time.DateOnly), sess.Currency}] += sess.Amount
	}
	return sortedByDateDesc(lo.MapToSlice(sums, func(k key, v int64) StatisticResponseDataItem {
		return StatisticResponseDataItem{Date: k.day, Label: k.currency, Value: v}
	})), nil
}

func sortedByDateDesc(items []StatisticResponseDataItem) []StatisticResponseDataItem {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Date != items[j].Date {
			return items[i].Date > items[j].Date
		}
		return items[i].Label < items[j].Label
	})
	return items
}

func (s *Service) getStatistic(ctx context.Context, req *StatisticRequest, item *StatisticDataItem) ([]StatisticResponseDataItem, error) {
	switch item.ID {
	case StatisticTypeTotalMemberCount:
		return s.getTotalMemberCount(ctx, req)
	case StatisticTypeMemberCountByTier:
		return s.getMemberCountByTier(ctx, req)
	case StatisticTypeDailyMintCount:
		return s.getDailyMintCount(ctx, req)
	case StatisticTypeLinkedCardCount:
		return s.getLinkedCardCount(ctx, req)
	case StatisticTypeSessionCountByStatus:
		return s.getSessionCountByStatus(ctx, req)
	case StatisticTypeDailyRevenue:
		return s.getDailyRevenue(ctx, req)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", item.ID)
	}
}

// GetStatistic computes every requested data item concurrently.
func (s *Service) GetStatistic(ctx context.Context, req *StatisticRequest) (*StatisticResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var wg sync.WaitGroup
	errChan := make(chan error, len(req.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []StatisticResponseDataItem], len(req.DataItems))

	for _, item := range req.DataItems {
		wg.Add(1)
		go func(di *StatisticDataItem) {
			defer wg.Done()
			if !req.applicable(di.ID) {
				resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: nil}
				return
			}
			res, err := s.getStatistic(ctx, req, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	go func() { wg.Wait(); close(errChan); close(resChan) }()

	results := make(map[StatisticType][]StatisticResponseDataItem)
	for i := 0; i < len(req.DataItems); i++ {
		select {
		case err := <-errChan:
			if err != nil {
				return nil, err
			}
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &StatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
