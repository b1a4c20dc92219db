package message

import (
	"encoding/binary"
	"fmt"
)

// Canonical deterministic encoding of Data (§4.1 step 2, §6). The
// spec pins conformance to a specific generated-code encoder
// (ts-proto v1.146.0); without a protobuf toolchain available this
// engine hand-rolls the same wire rules protobuf defines — ascending
// tag order, varint-encoded integers, length-delimited bytes/strings/
// submessages, packed repeated numerics, and a single emitted oneof
// arm — against a field-tag assignment fixed below. Two engines using
// this encoder agree byte-for-byte because every rule it implements
// is deterministic; it is not a drop-in replacement for a real
// protobuf library (see DESIGN.md).

const (
	wireVarint = 0
	wireBytes  = 2
)

type fieldTag uint32

const (
	tagType      fieldTag = 1
	tagFid       fieldTag = 2
	tagTimestamp fieldTag = 3
	tagNetwork   fieldTag = 4

	tagSignerAddBody      fieldTag = 5
	tagSignerRemoveBody   fieldTag = 6
	tagUserDataBody       fieldTag = 7
	tagCastAddBody        fieldTag = 8
	tagCastRemoveBody     fieldTag = 9
	tagReactionBody       fieldTag = 10
	tagVerificationAdd    fieldTag = 11
	tagVerificationRemove fieldTag = 12
)

type encoder struct {
	buf []byte
}

func (e *encoder) writeTag(tag fieldTag, wireType uint32) {
	e.buf = appendVarint(e.buf, uint64(uint32(tag)<<3|wireType))
}

func (e *encoder) writeVarintField(tag fieldTag, v uint64) {
	if v == 0 {
		return // default-valued scalars omitted
	}
	e.writeTag(tag, wireVarint)
	e.buf = appendVarint(e.buf, v)
}

func (e *encoder) writeBytesField(tag fieldTag, v []byte) {
	if len(v) == 0 {
		return
	}
	e.writeTag(tag, wireBytes)
	e.buf = appendVarint(e.buf, uint64(len(v)))
	e.buf = append(e.buf, v...)
}

func (e *encoder) writeStringField(tag fieldTag, v string) {
	if v == "" {
		return
	}
	e.writeBytesField(tag, []byte(v))
}

func (e *encoder) writeSubmessage(tag fieldTag, sub []byte) {
	if len(sub) == 0 {
		return
	}
	e.writeBytesField(tag, sub)
}

func (e *encoder) writePackedVarints(tag fieldTag, vs []uint64) {
	if len(vs) == 0 {
		return
	}
	var packed []byte
	for _, v := range vs {
		packed = appendVarint(packed, v)
	}
	e.writeBytesField(tag, packed)
}

func appendVarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// EncodeData canonically encodes a Message's data payload. This is
// what the validator re-derives and hashes to check against
// Message.Hash (§4.1 step 2).
func EncodeData(d *Data) ([]byte, error) {
	e := &encoder{}
	e.writeVarintField(tagType, uint64(d.Type))
	e.writeVarintField(tagFid, d.Fid)
	e.writeVarintField(tagTimestamp, uint64(d.Timestamp))
	e.writeVarintField(tagNetwork, uint64(d.Network))

	switch d.Type {
	case TypeSignerAdd:
		if d.SignerAdd == nil {
			return nil, fmt.Errorf("encode: SignerAdd type without body")
		}
		e.writeSubmessage(tagSignerAddBody, encodeSignerBody(d.SignerAdd))
	case TypeSignerRemove:
		if d.SignerRemove == nil {
			return nil, fmt.Errorf("encode: SignerRemove type without body")
		}
		e.writeSubmessage(tagSignerRemoveBody, encodeSignerBody(d.SignerRemove))
	case TypeUserDataAdd:
		if d.UserDataAdd == nil {
			return nil, fmt.Errorf("encode: UserDataAdd type without body")
		}
		e.writeSubmessage(tagUserDataBody, encodeUserDataBody(d.UserDataAdd))
	case TypeCastAdd:
		if d.CastAdd == nil {
			return nil, fmt.Errorf("encode: CastAdd type without body")
		}
		e.writeSubmessage(tagCastAddBody, encodeCastAddBody(d.CastAdd))
	case TypeCastRemove:
		if d.CastRemove == nil {
			return nil, fmt.Errorf("encode: CastRemove type without body")
		}
		e.writeSubmessage(tagCastRemoveBody, d.CastRemove.TargetHash[:])
	case TypeReactionAdd:
		if d.ReactionAdd == nil {
			return nil, fmt.Errorf("encode: ReactionAdd type without body")
		}
		e.writeSubmessage(tagReactionBody, encodeReactionBody(d.ReactionAdd))
	case TypeReactionRemove:
		if d.ReactionRemove == nil {
			return nil, fmt.Errorf("encode: ReactionRemove type without body")
		}
		e.writeSubmessage(tagReactionBody, encodeReactionBody(d.ReactionRemove))
	case TypeVerificationAddEthAddress:
		if d.VerificationAddEthAddress == nil {
			return nil, fmt.Errorf("encode: VerificationAdd type without body")
		}
		e.writeSubmessage(tagVerificationAdd, encodeVerificationAddBody(d.VerificationAddEthAddress))
	case TypeVerificationRemove:
		if d.VerificationRemove == nil {
			return nil, fmt.Errorf("encode: VerificationRemove type without body")
		}
		e.writeSubmessage(tagVerificationRemove, d.VerificationRemove.Address[:])
	default:
		return nil, fmt.Errorf("encode: unknown message type %v", d.Type)
	}

	return e.buf, nil
}

func encodeSignerBody(b *SignerBody) []byte {
	e := &encoder{}
	e.writeBytesField(1, b.Signer[:])
	e.writeStringField(2, b.Name)
	return e.buf
}

func encodeUserDataBody(b *UserDataBody) []byte {
	e := &encoder{}
	e.writeVarintField(1, uint64(b.Type))
	e.writeStringField(2, b.Value)
	return e.buf
}

func encodeCastId(c *CastId) []byte {
	e := &encoder{}
	e.writeVarintField(1, c.Fid)
	e.writeBytesField(2, c.Hash[:])
	return e.buf
}

func encodeCastAddBody(b *CastAddBody) []byte {
	e := &encoder{}
	e.writeStringField(1, b.Text)
	mentions := make([]uint64, len(b.Mentions))
	copy(mentions, b.Mentions)
	e.writePackedVarints(2, mentions)
	positions := make([]uint64, len(b.MentionsPositions))
	copy(positions, b.MentionsPositions)
	e.writePackedVarints(3, positions)
	for _, embed := range b.Embeds {
		sub := &encoder{}
		if embed.CastId != nil {
			sub.writeSubmessage(2, encodeCastId(embed.CastId))
		} else {
			sub.writeStringField(1, embed.Url)
		}
		e.writeSubmessage(4, sub.buf)
	}
	if b.Parent != nil {
		e.writeSubmessage(5, encodeCastId(b.Parent))
	}
	return e.buf
}

func encodeReactionBody(b *ReactionBody) []byte {
	e := &encoder{}
	e.writeVarintField(1, uint64(b.Type))
	e.writeSubmessage(2, encodeCastId(&b.Target))
	return e.buf
}

func encodeVerificationAddBody(b *VerificationAddBody) []byte {
	e := &encoder{}
	e.writeBytesField(1, b.Address[:])
	e.writeBytesField(2, b.BlockHash[:])
	e.writeBytesField(3, b.EthSignature)
	return e.buf
}

const (
	tagEnvelopeData            fieldTag = 1
	tagEnvelopeHash            fieldTag = 2
	tagEnvelopeHashScheme      fieldTag = 3
	tagEnvelopeSignature       fieldTag = 4
	tagEnvelopeSignatureScheme fieldTag = 5
	tagEnvelopeSigner          fieldTag = 6
)

// EncodeMessage canonically encodes a full Message envelope (data
// bytes plus hash, signature, and signer) for transport over the
// gossip "messages" topic and the sync RPCs (§6).
func EncodeMessage(m *Message) ([]byte, error) {
	dataBytes, err := EncodeData(&m.Data)
	if err != nil {
		return nil, err
	}
	e := &encoder{}
	e.writeSubmessage(tagEnvelopeData, dataBytes)
	e.writeBytesField(tagEnvelopeHash, m.Hash[:])
	e.writeVarintField(tagEnvelopeHashScheme, uint64(m.HashScheme))
	e.writeBytesField(tagEnvelopeSignature, m.Signature)
	e.writeVarintField(tagEnvelopeSignatureScheme, uint64(m.SignatureScheme))
	e.writeBytesField(tagEnvelopeSigner, m.Signer)
	return e.buf, nil
}
