package validate

import (
	"fmt"
	"unicode/utf8"

	"github.com/farcasterxyz/hubcore/common"
	"github.com/farcasterxyz/hubcore/crypto"
	"github.com/farcasterxyz/hubcore/message"
)

// validateBody dispatches to the type-specific body constraint check
// named in the §6 table. The caller (checkSemantic) runs after
// checkStructural has confirmed exactly one body is set.
func validateBody(m *message.Message) error {
	d := &m.Data
	switch d.Type {
	case message.TypeSignerAdd:
		return validateSignerAdd(d.SignerAdd)
	case message.TypeSignerRemove:
		return validateSignerRemove(d.SignerRemove)
	case message.TypeUserDataAdd:
		return validateUserDataAdd(d.UserDataAdd)
	case message.TypeCastAdd:
		return validateCastAdd(d.CastAdd)
	case message.TypeCastRemove:
		return nil // target_hash is fixed-size [20]byte, already structural
	case message.TypeReactionAdd:
		return validateReaction(d.ReactionAdd)
	case message.TypeReactionRemove:
		return validateReaction(d.ReactionRemove)
	case message.TypeVerificationAddEthAddress:
		return validateVerificationAdd(d)
	case message.TypeVerificationRemove:
		return nil // address is fixed-size [20]byte, already structural
	default:
		return common.NewHubErr(common.MalformedBytes, "unknown message type")
	}
}

func validateSignerAdd(b *message.SignerBody) error {
	if !utf8.ValidString(b.Name) {
		return common.NewHubErr(common.BodyConstraintViolated, "signer name is not valid UTF-8")
	}
	if len(b.Name) > 32 {
		return common.NewHubErr(common.BodyConstraintViolated, "signer name exceeds 32 bytes")
	}
	return nil
}

func validateSignerRemove(b *message.SignerBody) error {
	return nil // Signer is fixed-size [32]byte, already structural
}

func validateUserDataAdd(b *message.UserDataBody) error {
	if b.Type == message.UserDataTypeUnknown {
		return common.NewHubErr(common.BodyConstraintViolated, "unknown user data type")
	}
	if !utf8.ValidString(b.Value) {
		return common.NewHubErr(common.BodyConstraintViolated, "user data value is not valid UTF-8")
	}
	if max := b.Type.MaxLen(); max >= 0 && len(b.Value) > max {
		return common.NewHubErr(common.BodyConstraintViolated,
			fmt.Sprintf("user data value exceeds %d bytes for type %d", max, b.Type))
	}
	// FNAME resolution against the external fname registry is an
	// on-chain/off-chain collaborator outside this core (§1 scope);
	// callers that have resolved it pass validated bodies in.
	return nil
}

func validateCastAdd(b *message.CastAddBody) error {
	if !utf8.ValidString(b.Text) {
		return common.NewHubErr(common.BodyConstraintViolated, "cast text is not valid UTF-8")
	}
	if len(b.Text) > 320 {
		return common.NewHubErr(common.BodyConstraintViolated, "cast text exceeds 320 bytes")
	}
	if len(b.Embeds) > 2 {
		return common.NewHubErr(common.BodyConstraintViolated, "cast has more than 2 embeds")
	}
	for _, e := range b.Embeds {
		var n int
		if e.CastId != nil {
			n = 28 // fid varint upper bound + 20-byte hash, constant-ish
		} else {
			n = len(e.Url)
		}
		if n < 1 || n > 256 {
			return common.NewHubErr(common.BodyConstraintViolated, "embed size out of [1,256] bytes")
		}
	}
	if len(b.Mentions) > 10 {
		return common.NewHubErr(common.BodyConstraintViolated, "more than 10 mentions")
	}
	if len(b.Mentions) != len(b.MentionsPositions) {
		return common.NewHubErr(common.BodyConstraintViolated, "mentions and mentionsPositions length mismatch")
	}
	textLen := uint64(len(b.Text))
	var prev uint64
	seen := make(map[uint64]struct{}, len(b.MentionsPositions))
	for i, p := range b.MentionsPositions {
		if p > textLen {
			return common.NewHubErr(common.BodyConstraintViolated, "mention position exceeds text length")
		}
		if i > 0 && p <= prev {
			return common.NewHubErr(common.BodyConstraintViolated, "mention positions must be strictly ascending")
		}
		if _, dup := seen[p]; dup {
			return common.NewHubErr(common.BodyConstraintViolated, "duplicate mention position")
		}
		seen[p] = struct{}{}
		prev = p
	}
	if b.Parent != nil && b.Parent.Fid == 0 {
		return common.NewHubErr(common.BodyConstraintViolated, "parent cast id must have fid > 0")
	}
	return nil
}

func validateReaction(b *message.ReactionBody) error {
	if b.Type != message.ReactionTypeLike && b.Type != message.ReactionTypeRecast {
		return common.NewHubErr(common.BodyConstraintViolated, "unknown reaction type")
	}
	if b.Target.Fid == 0 {
		return common.NewHubErr(common.BodyConstraintViolated, "reaction target must have fid > 0")
	}
	return nil
}

func validateVerificationAdd(d *message.Data) error {
	b := d.VerificationAddEthAddress
	if len(b.EthSignature) != 65 {
		return common.NewHubErr(common.BodyConstraintViolated, "eth_signature must be 65 bytes")
	}
	network := uint8(d.Network)
	if !crypto.VerifyVerificationClaim(d.Fid, b.Address, network, b.BlockHash, b.EthSignature, b.Address) {
		return common.NewHubErr(common.BodyConstraintViolated, "eth_signature does not verify VerificationClaim")
	}
	return nil
}
