package types

import (
	"errors"
	"strings"
)

var ErrInvalidCardID = errors.New("invalid card id")

// cardIDRule is what card readers report: a UID or printed id of 4 to 64
// printable ASCII characters, no whitespace.
const cardIDRule = "required,min=4,max=64,printascii,nospace"

// NormalizeCardID trims id and checks it against the card id rule. Linking
// and terminal verification both go through it, so any linked card is one a
// terminal can look up.
func NormalizeCardID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if err := validate.Var(id, cardIDRule); err != nil {
		return "", ErrInvalidCardID
	}
	return id, nil
}
