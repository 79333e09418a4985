package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	smpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/memo"
	"github.com/blocto/solana-go-sdk/rpc"
	"github.com/blocto/solana-go-sdk/types"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/internal/models"
	"github.com/fatflowers/yachtclub/pkg/config"
)

var ErrAnchorRejected = errors.New("ledger: anchor transaction failed on chain")

// AnchorStatus is the external chain's view of one anchored entry.
type AnchorStatus struct {
	Confirmations uint64
	Finalized     bool
}

// Anchor publishes committed journal entries to an external chain.
type Anchor interface {
	Submit(ctx context.Context, entry *models.LedgerEntry) (signature string, err error)
	Status(ctx context.Context, signature string) (AnchorStatus, error)
}

// solanaRPC is the subset of *client.Client the anchor uses.
type solanaRPC interface {
	GetLatestBlockhash(ctx context.Context) (rpc.GetLatestBlockhashValue, error)
	SendTransaction(ctx context.Context, tx types.Transaction) (string, error)
	GetSignatureStatus(ctx context.Context, signature string) (*rpc.SignatureStatus, error)
}

// SolanaAnchor writes "yachtclub:<height>:<hash>" memos signed by the
// registry's anchor key.
type SolanaAnchor struct {
	rpc    solanaRPC
	signer types.Account
}

func NewSolanaAnchor(rpcClient solanaRPC, signer types.Account) *SolanaAnchor {
	return &SolanaAnchor{rpc: rpcClient, signer: signer}
}

func anchorMemo(entry *models.LedgerEntry) string {
	return fmt.Sprintf("yachtclub:%d:%s", entry.Height, entry.Hash)
}

func (a *SolanaAnchor) Submit(ctx context.Context, entry *models.LedgerEntry) (string, error) {
	latest, err := a.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("solana GetLatestBlockhash: %w", err)
	}
	tx, err := types.NewTransaction(types.NewTransactionParam{
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        a.signer.PublicKey,
			RecentBlockhash: latest.Blockhash,
			Instructions: []types.Instruction{
				memo.BuildMemo(memo.BuildMemoParam{
					SignerPubkeys: []common.PublicKey{a.signer.PublicKey},
					Memo:          []byte(anchorMemo(entry)),
				}),
			},
		}),
		Signers: []types.Account{a.signer},
	})
	if err != nil {
		return "", fmt.Errorf("solana NewTransaction: %w", err)
	}
	sig, err := a.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("solana SendTransaction: %w", err)
	}
	return sig, nil
}

func (a *SolanaAnchor) Status(ctx context.Context, signature string) (AnchorStatus, error) {
	st, err := a.rpc.GetSignatureStatus(ctx, signature)
	if err != nil {
		return AnchorStatus{}, fmt.Errorf("solana GetSignatureStatus: %w", err)
	}
	if st == nil {
		return AnchorStatus{}, nil
	}
	if st.Err != nil {
		return AnchorStatus{}, fmt.Errorf("%w: %v", ErrAnchorRejected, st.Err)
	}
	var out AnchorStatus
	if st.Confirmations != nil {
		out.Confirmations = *st.Confirmations
	}
	if st.ConfirmationStatus != nil && *st.ConfirmationStatus == rpc.CommitmentFinalized {
		out.Finalized = true
	}
	return out, nil
}

// NewAnchor returns the Solana anchor when an RPC URL is configured and nil
// otherwise.
func NewAnchor(cfg *config.Config, log *zap.SugaredLogger) (Anchor, error) {
	sc := cfg.Ledger.Solana
	if strings.TrimSpace(sc.RPCURL) == "" {
		log.Infow("ledger anchoring disabled, committed entries are final")
		return nil, nil
	}
	signer, err := loadSigner(context.Background(), sc)
	if err != nil {
		return nil, err
	}
	log.Infow("ledger anchoring enabled", "rpc_url", sc.RPCURL, "signer", signer.PublicKey.ToBase58())
	return NewSolanaAnchor(client.NewClient(sc.RPCURL), signer), nil
}

func loadSigner(ctx context.Context, sc config.SolanaConfig) (types.Account, error) {
	if key := strings.TrimSpace(sc.PrivateKey); key != "" {
		acc, err := types.AccountFromBase58(key)
		if err != nil {
			return types.Account{}, fmt.Errorf("decode anchor private key: %w", err)
		}
		return acc, nil
	}
	if sc.SecretName == "" {
		return types.Account{}, errors.New("ledger.solana needs private_key or secret_name")
	}

	sm, err := secretmanager.NewClient(ctx)
	if err != nil {
		return types.Account{}, fmt.Errorf("secretmanager.NewClient: %w", err)
	}
	defer sm.Close()

	resp, err := sm.AccessSecretVersion(ctx, &smpb.AccessSecretVersionRequest{Name: sc.SecretName})
	if err != nil {
		return types.Account{}, fmt.Errorf("access secret version %s: %w", sc.SecretName, err)
	}
	return accountFromSecret(resp.Payload.Data)
}

// accountFromSecret accepts a solana-keygen JSON byte array or a base58 key.
func accountFromSecret(data []byte) (types.Account, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(trimmed), &ints); err != nil {
			return types.Account{}, fmt.Errorf("unmarshal keypair json: %w", err)
		}
		b := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return types.Account{}, fmt.Errorf("keypair byte %d out of range", i)
			}
			b[i] = byte(v)
		}
		acc, err := types.AccountFromBytes(b)
		if err != nil {
			return types.Account{}, fmt.Errorf("decode signer key bytes: %w", err)
		}
		return acc, nil
	}
	acc, err := types.AccountFromBase58(trimmed)
	if err != nil {
		return types.Account{}, fmt.Errorf("decode signer key base58: %w", err)
	}
	return acc, nil
}
