// Package cascade implements the revocation cascade (C6, §4.3): the
// unconditional, tombstone-free discards that follow a fid transfer or
// a signer leaving the Signer CRDT's add-set.
package cascade

import (
	"github.com/sirupsen/logrus"

	"github.com/farcasterxyz/hubcore/common"
	"github.com/farcasterxyz/hubcore/message"
)

// discarder is the narrow view the cascade needs of a CRDT store:
// unconditional removal of everything a (fid, signer) pair authored.
// Both crdt.Store and crdt.PersistentStore satisfy it, so the cascade
// never has to know whether its stores persist to disk.
type discarder interface {
	DiscardAllByFidAndSigner(fid uint64, signer []byte) []*message.Message
}

// Cascade wires the Signer CRDT to the fidregistry (as a
// fidregistry.TransferListener) and to the four C5 CRDTs that store
// messages keyed by (fid, signer): UserData, Cast, Reaction, and
// Verification.
type Cascade struct {
	logger *logrus.Entry
	signer discarder
	c5     []discarder
}

// New builds a Cascade over the Signer store and the given C5 stores.
func New(logger *logrus.Logger, signer discarder, c5 ...discarder) *Cascade {
	if logger == nil {
		logger = logrus.New()
	}
	return &Cascade{
		logger: logger.WithField("component", "cascade"),
		signer: signer,
		c5:     c5,
	}
}

// ApplyEvicted cascades every SignerAdd in evicted: a pubkey leaving
// the Signer add-set means every C5 message that pubkey signed for
// its fid is discarded (§4.3 "Signer removed or discarded"). Callers
// merge into the Signer CRDT themselves (so they control how that
// merge is persisted) and pass the result's Evicted list here.
func (c *Cascade) ApplyEvicted(evicted []*message.Message) {
	for _, m := range evicted {
		if m.Data.Type != message.TypeSignerAdd {
			continue
		}
		c.revokeSigner(m)
	}
}

// OnFidTransfer implements fidregistry.TransferListener (§4.3 "Fid
// transfer"). It runs synchronously inside the registry's write lock,
// so the cascade commits atomically with the custody change (§9
// "Cascade atomicity").
func (c *Cascade) OnFidTransfer(fid uint64, from, to [20]byte, block uint64) {
	discarded := c.signer.DiscardAllByFidAndSigner(fid, from[:])
	for _, d := range discarded {
		c.logger.WithFields(logrus.Fields{
			"fid":   fid,
			"from":  fmtAddr(from),
			"to":    fmtAddr(to),
			"block": block,
			"type":  d.Data.Type,
		}).Info("discarded signer-scheme message on fid transfer")

		if d.Data.Type == message.TypeSignerAdd {
			c.revokeSigner(d)
		}
	}
}

// revokeSigner discards every message the revoked SignerAdd's pubkey
// authored across the C5 CRDTs for that fid.
func (c *Cascade) revokeSigner(signerAdd *message.Message) {
	pubkey, err := signerOf(signerAdd)
	if err != nil {
		c.logger.WithError(err).Warn("cascade: malformed SignerAdd, skipping revocation")
		return
	}

	fid := signerAdd.Data.Fid
	for _, store := range c.c5 {
		discarded := store.DiscardAllByFidAndSigner(fid, pubkey[:])
		if len(discarded) > 0 {
			c.logger.WithFields(logrus.Fields{
				"fid":    fid,
				"signer": common.EncodeToString(pubkey[:]),
				"count":  len(discarded),
			}).Info("cascade discarded C5 messages for revoked signer")
		}
	}
}

// signerOf mirrors crdt.SignerOf without importing the crdt package,
// so cascade depends only on message and stays free to operate over
// either crdt.Store or crdt.PersistentStore via the discarder
// interface.
func signerOf(m *message.Message) ([32]byte, error) {
	switch m.Data.Type {
	case message.TypeSignerAdd:
		if m.Data.SignerAdd == nil {
			return [32]byte{}, common.NewHubErr(common.MalformedBytes, "SignerAdd message missing body")
		}
		return m.Data.SignerAdd.Signer, nil
	default:
		return [32]byte{}, common.NewHubErr(common.MalformedBytes, "revokeSigner called on a non-SignerAdd message")
	}
}

func fmtAddr(a [20]byte) string { return common.EncodeToString(a[:]) }
