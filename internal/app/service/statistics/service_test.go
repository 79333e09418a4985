package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/internal/platform/db/dbtest"
	"github.com/fatflowers/yachtclub/pkg/types"
)

var (
	day1 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	day2 = time.Date(2026, 5, 2, 23, 30, 0, 0, time.UTC)
)

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	tokens := []models.MembershipToken{
		{TokenID: 1, Owner: "0x1111111111111111111111111111111111111111", Tier: types.TierStandard, MintedAt: day1, Active: true},
		{TokenID: 2, Owner: "0x2222222222222222222222222222222222222222", Tier: types.TierPremium, MintedAt: day1, Active: true},
		{TokenID: 3, Owner: "0x3333333333333333333333333333333333333333", Tier: types.TierPremium, MintedAt: day2, Active: false},
	}
	require.NoError(t, db.Create(&tokens).Error)

	one, two := int64(1), int64(2)
	cards := []models.NFCCard{
		{CardID: "CARD0001", IsActive: true, TokenID: &one},
		{CardID: "CARD0002", IsActive: false, TokenID: &two},
		{CardID: "CARD0003", IsActive: false},
	}
	require.NoError(t, db.Create(&cards).Error)

	sessions := []models.PaymentSession{
		{SessionID: "cs_1", WalletAddress: tokens[0].Owner, Tier: types.TierStandard, Amount: 99900, Currency: "usd", Status: types.PaymentSessionStatusCompleted, UpdatedAt: day1},
		{SessionID: "cs_2", WalletAddress: tokens[1].Owner, Tier: types.TierPremium, Amount: 249900, Currency: "usd", Status: types.PaymentSessionStatusCompleted, UpdatedAt: day1},
		{SessionID: "cs_3", WalletAddress: tokens[2].Owner, Tier: types.TierPremium, Amount: 200000, Currency: "eur", Status: types.PaymentSessionStatusCompleted, UpdatedAt: day2},
		{SessionID: "cs_4", WalletAddress: "0x5555555555555555555555555555555555555555", Tier: types.TierElite, Amount: 499900, Currency: "usd", Status: types.PaymentSessionStatusPending},
	}
	require.NoError(t, db.Create(&sessions).Error)
}

func items(ids ...StatisticType) []*StatisticDataItem {
	out := make([]*StatisticDataItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, &StatisticDataItem{ID: id})
	}
	return out
}

func TestGetStatistic(t *testing.T) {
	db := dbtest.New(t)
	seed(t, db)
	svc := New(db)

	res, err := svc.GetStatistic(context.Background(), &StatisticRequest{DataItems: items(
		StatisticTypeTotalMemberCount,
		StatisticTypeMemberCountByTier,
		StatisticTypeDailyMintCount,
		StatisticTypeLinkedCardCount,
		StatisticTypeSessionCountByStatus,
		StatisticTypeDailyRevenue,
	)})
	require.NoError(t, err)

	require.Equal(t, []StatisticResponseDataItem{{Value: 2, Value2: 3}}, res.DataItems[StatisticTypeTotalMemberCount])
	require.Equal(t, []StatisticResponseDataItem{
		{Label: "standard", Value: 1},
		{Label: "premium", Value: 1},
	}, res.DataItems[StatisticTypeMemberCountByTier])
	require.Equal(t, []StatisticResponseDataItem{
		{Date: "2026-05-02", Value: 1},
		{Date: "2026-05-01", Value: 2},
	}, res.DataItems[StatisticTypeDailyMintCount])
	require.Equal(t, []StatisticResponseDataItem{{Value: 2, Value2: 1}}, res.DataItems[StatisticTypeLinkedCardCount])
	require.Equal(t, []StatisticResponseDataItem{
		{Label: "completed", Value: 3},
		{Label: "pending", Value: 1},
	}, res.DataItems[StatisticTypeSessionCountByStatus])
	require.Equal(t, []StatisticResponseDataItem{
		{Date: "2026-05-02", Label: "eur", Value: 200000},
		{Date: "2026-05-01", Label: "usd", Value: 349800},
	}, res.DataItems[StatisticTypeDailyRevenue])
}

func TestGetStatistic_Filters(t *testing.T) {
	db := dbtest.New(t)
	seed(t, db)
	svc := New(db)
	ctx := context.Background()

	res, err := svc.GetStatistic(ctx, &StatisticRequest{
		Filters: types.CommonFilters{
			{Field: "tier", Operator: types.CommonFilterOperatorEq, Values: []any{int(types.TierPremium)}},
		},
		DataItems: items(StatisticTypeTotalMemberCount, StatisticTypeLinkedCardCount),
	})
	require.NoError(t, err)
	require.Equal(t, []StatisticResponseDataItem{{Value: 1, Value2: 2}}, res.DataItems[StatisticTypeTotalMemberCount])
	require.Contains(t, res.DataItems, StatisticTypeLinkedCardCount)
	require.Nil(t, res.DataItems[StatisticTypeLinkedCardCount], "cards cannot be filtered by tier")

	res, err = svc.GetStatistic(ctx, &StatisticRequest{
		Filters: types.CommonFilters{
			{Field: "currency", Operator: types.CommonFilterOperatorEq, Values: []any{"usd"}},
		},
		DataItems: items(StatisticTypeDailyRevenue),
	})
	require.NoError(t, err)
	require.Equal(t, []StatisticResponseDataItem{{Date: "2026-05-01", Label: "usd", Value: 349800}}, res.DataItems[StatisticTypeDailyRevenue])
}

func TestGetStatistic_InvalidRequest(t *testing.T) {
	svc := New(dbtest.New(t))
	ctx := context.Background()

	_, err := svc.GetStatistic(ctx, &StatisticRequest{})
	require.Error(t, err)

	_, err = svc.GetStatistic(ctx, &StatisticRequest{
		Filters:   types.CommonFilters{{Field: "owner", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}}},
		DataItems: items(StatisticTypeTotalMemberCount),
	})
	require.Error(t, err)

	_, err = svc.GetStatistic(ctx, &StatisticRequest{DataItems: items("bogus")})
	require.ErrorContains(t, err, "invalid data item id")
}
