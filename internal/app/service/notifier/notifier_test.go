package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/pkg/types"
)

type recordingMailer struct {
	to, subject, text string
	calls             int
	err               error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, text, _ string) error {
	m.calls++
	m.to, m.subject, m.text = to, subject, text
	return m.err
}

func premium(t *testing.T) types.TierDefinition {
	def, ok := types.NewTierTable().Get(types.TierPremium)
	require.True(t, ok)
	return def
}

func TestMembershipConfirmed(t *testing.T) {
	m := &recordingMailer{}
	n := New(m, zap.NewNop().Sugar())

	n.MembershipConfirmed(context.Background(), Membership{
		Email:         "a@example.com",
		WalletAddress: "0x1111111111111111111111111111111111111111",
		TokenID:       7,
		Tier:          premium(t),
	})

	require.Equal(t, 1, m.calls)
	require.Equal(t, "a@example.com", m.to)
	require.Contains(t, m.subject, "Premium")
	require.Contains(t, m.text, "#7")
	require.Contains(t, m.text, "Priority berth booking")
}

func TestMembershipConfirmed_SkipsAndSwallows(t *testing.T) {
	m := &recordingMailer{err: errors.New("boom")}
	n := New(m, zap.NewNop().Sugar())

	n.MembershipConfirmed(context.Background(), Membership{TokenID: 1, Tier: premium(t)})
	require.Zero(t, m.calls, "no address, no mail")

	n.MembershipConfirmed(context.Background(), Membership{Email: "a@example.com", TokenID: 1, Tier: premium(t)})
	require.Equal(t, 1, m.calls)

	New(nil, zap.NewNop().Sugar()).MembershipConfirmed(context.Background(), Membership{Email: "a@example.com"})
	var nilNotifier *Notifier
	nilNotifier.MembershipConfirmed(context.Background(), Membership{Email: "a@example.com"})
}
