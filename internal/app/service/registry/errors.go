package registry

import (
	"errors"

	"github.com/fatflowers/yachtclub/internal/app/service/ledger"
	"github.com/fatflowers/yachtclub/pkg/types"
)

// Registry errors are precondition failures. They are returned unwrapped so
// callers can match them with errors.Is and map them at the transport edge.
var (
	// authorization
	ErrUnauthorized               = errors.New("caller is not the authorized minter")
	ErrOwnableUnauthorizedAccount = errors.New("caller is not the registry owner")
	ErrNotTokenOwner              = errors.New("operator may not transfer this token")
	ErrTransferRestricted         = errors.New("transfer restricted to approved marketplaces")

	// uniqueness
	ErrAlreadyMember       = errors.New("wallet already holds a membership token")
	ErrCardAlreadyLinked   = errors.New("card is linked to a token")
	ErrTokenAlreadyHasCard = errors.New("token already has a linked card")
	ErrReferenceUsed       = errors.New("mint reference already consumed")

	// not found
	ErrTokenNotFound = errors.New("token not found")
	ErrNoCardLinked  = errors.New("token has no linked card")

	// invalid input
	ErrInvalidAddress = types.ErrInvalidAddress
	ErrInvalidTier    = errors.New("unknown membership tier")
	ErrInvalidRoyalty = errors.New("royalty fraction must be within 0..10000 basis points")
	ErrInvalidPrice   = errors.New("sale price must be non-negative")
	ErrInvalidCardID  = errors.New("card id is malformed")
)

// Kind groups registry errors for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthorization
	KindConflict
	KindNotFound
	KindInvalid
)

var kinds = map[error]Kind{
	ErrUnauthorized:               KindAuthorization,
	ErrOwnableUnauthorizedAccount: KindAuthorization,
	ErrNotTokenOwner:              KindAuthorization,
	ErrTransferRestricted:         KindAuthorization,
	ErrAlreadyMember:              KindConflict,
	ErrCardAlreadyLinked:          KindConflict,
	ErrTokenAlreadyHasCard:        KindConflict,
	ErrReferenceUsed:              KindConflict,
	ErrTokenNotFound:              KindNotFound,
	ErrNoCardLinked:               KindNotFound,
	ledger.ErrEntryNotFound:       KindNotFound,
	ErrInvalidAddress:             KindInvalid,
	ErrInvalidTier:                KindInvalid,
	ErrInvalidRoyalty:             KindInvalid,
	ErrInvalidPrice:               KindInvalid,
	ErrInvalidCardID:              KindInvalid,
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for sentinel, k := range kinds {
		if errors.Is(err, sentinel) {
			return k
		}
	}
	return KindInternal
}
