package message

import (
	"encoding/binary"
	"fmt"
)

// fieldReader walks a canonically-encoded buffer one (tag, wire-type)
// field at a time. It is the decode-side counterpart of encoder
// (encode.go) and exists for the same reason: no protobuf toolchain
// is available, so the wire rules are hand-walked directly.
type fieldReader struct {
	buf []byte
	pos int
}

func (r *fieldReader) done() bool {
	return r.pos >= len(r.buf)
}

func (r *fieldReader) readTag() (fieldTag, uint32, error) {
	v, err := r.readVarint()
	if err != nil {
		return 0, 0, err
	}
	return fieldTag(v >> 3), uint32(v & 0x7), nil
}

func (r *fieldReader) readVarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("decode: malformed varint at offset %d", r.pos)
	}
	r.pos += n
	return v, nil
}

func (r *fieldReader) readBytes() ([]byte, error) {
	n, err := r.readVarint()
	if err != nil {
		return nil, err
	}
	end := r.pos + int(n)
	if end > len(r.buf) || end < r.pos {
		return nil, fmt.Errorf("decode: length-delimited field overruns buffer")
	}
	out := r.buf[r.pos:end]
	r.pos = end
	return out, nil
}

// skip discards the value of a field whose tag this decoder does not
// recognize, so unknown fields do not break forward compatibility.
func (r *fieldReader) skip(wireType uint32) error {
	switch wireType {
	case wireVarint:
		_, err := r.readVarint()
		return err
	case wireBytes:
		_, err := r.readBytes()
		return err
	default:
		return fmt.Errorf("decode: unknown wire type %d", wireType)
	}
}

func fixedBytes(dst []byte, src []byte, field string) error {
	if len(src) != len(dst) {
		return fmt.Errorf("decode: %s must be %d bytes, got %d", field, len(dst), len(src))
	}
	copy(dst, src)
	return nil
}

// DecodeData is the inverse of EncodeData (§8 invariant 7:
// decode(encode(m)) = m).
func DecodeData(buf []byte) (*Data, error) {
	d := &Data{}
	r := &fieldReader{buf: buf}

	for !r.done() {
		tag, wireType, err := r.readTag()
		if err != nil {
			return nil, err
		}

		switch tag {
		case tagType:
			v, err := r.readVarint()
			if err != nil {
				return nil, err
			}
			d.Type = Type(v)
		case tagFid:
			v, err := r.readVarint()
			if err != nil {
				return nil, err
			}
			d.Fid = v
		case tagTimestamp:
			v, err := r.readVarint()
			if err != nil {
				return nil, err
			}
			d.Timestamp = uint32(v)
		case tagNetwork:
			v, err := r.readVarint()
			if err != nil {
				return nil, err
			}
			d.Network = Network(v)
		case tagSignerAddBody:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			if d.SignerAdd, err = decodeSignerBody(sub); err != nil {
				return nil, err
			}
		case tagSignerRemoveBody:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			if d.SignerRemove, err = decodeSignerBody(sub); err != nil {
				return nil, err
			}
		case tagUserDataBody:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			if d.UserDataAdd, err = decodeUserDataBody(sub); err != nil {
				return nil, err
			}
		case tagCastAddBody:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			if d.CastAdd, err = decodeCastAddBody(sub); err != nil {
				return nil, err
			}
		case tagCastRemoveBody:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			body := &CastRemoveBody{}
			if err := fixedBytes(body.TargetHash[:], sub, "target_hash"); err != nil {
				return nil, err
			}
			d.CastRemove = body
		case tagReactionBody:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			body, err := decodeReactionBody(sub)
			if err != nil {
				return nil, err
			}
			if d.Type == TypeReactionRemove {
				d.ReactionRemove = body
			} else {
				d.ReactionAdd = body
			}
		case tagVerificationAdd:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			if d.VerificationAddEthAddress, err = decodeVerificationAddBody(sub); err != nil {
				return nil, err
			}
		case tagVerificationRemove:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			body := &VerificationRemoveBody{}
			if err := fixedBytes(body.Address[:], sub, "address"); err != nil {
				return nil, err
			}
			d.VerificationRemove = body
		default:
			if err := r.skip(wireType); err != nil {
				return nil, err
			}
		}
	}

	return d, nil
}

func decodeSignerBody(buf []byte) (*SignerBody, error) {
	b := &SignerBody{}
	r := &fieldReader{buf: buf}
	for !r.done() {
		tag, wireType, err := r.readTag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case 1:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			if err := fixedBytes(b.Signer[:], sub, "signer"); err != nil {
				return nil, err
			}
		case 2:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			b.Name = string(sub)
		default:
			if err := r.skip(wireType); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

func decodeUserDataBody(buf []byte) (*UserDataBody, error) {
	b := &UserDataBody{}
	r := &fieldReader{buf: buf}
	for !r.done() {
		tag, wireType, err := r.readTag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case 1:
			v, err := r.readVarint()
			if err != nil {
				return nil, err
			}
			b.Type = UserDataType(v)
		case 2:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			b.Value = string(sub)
		default:
			if err := r.skip(wireType); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

func decodeCastId(buf []byte) (*CastId, error) {
	c := &CastId{}
	r := &fieldReader{buf: buf}
	for !r.done() {
		tag, wireType, err := r.readTag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case 1:
			v, err := r.readVarint()
			if err != nil {
				return nil, err
			}
			c.Fid = v
		case 2:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			if err := fixedBytes(c.Hash[:], sub, "hash"); err != nil {
				return nil, err
			}
		default:
			if err := r.skip(wireType); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func decodePackedVarints(buf []byte) ([]uint64, error) {
	var out []uint64
	r := &fieldReader{buf: buf}
	for !r.done() {
		v, err := r.readVarint()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeEmbed(buf []byte) (Embed, error) {
	var e Embed
	r := &fieldReader{buf: buf}
	for !r.done() {
		tag, wireType, err := r.readTag()
		if err != nil {
			return e, err
		}
		switch tag {
		case 1:
			sub, err := r.readBytes()
			if err != nil {
				return e, err
			}
			e.Url = string(sub)
		case 2:
			sub, err := r.readBytes()
			if err != nil {
				return e, err
			}
			castID, err := decodeCastId(sub)
			if err != nil {
				return e, err
			}
			e.CastId = castID
		default:
			if err := r.skip(wireType); err != nil {
				return e, err
			}
		}
	}
	return e, nil
}

func decodeCastAddBody(buf []byte) (*CastAddBody, error) {
	b := &CastAddBody{}
	r := &fieldReader{buf: buf}
	for !r.done() {
		tag, wireType, err := r.readTag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case 1:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			b.Text = string(sub)
		case 2:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			mentions, err := decodePackedVarints(sub)
			if err != nil {
				return nil, err
			}
			b.Mentions = mentions
		case 3:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			positions, err := decodePackedVarints(sub)
			if err != nil {
				return nil, err
			}
			b.MentionsPositions = positions
		case 4:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			embed, err := decodeEmbed(sub)
			if err != nil {
				return nil, err
			}
			b.Embeds = append(b.Embeds, embed)
		case 5:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			parent, err := decodeCastId(sub)
			if err != nil {
				return nil, err
			}
			b.Parent = parent
		default:
			if err := r.skip(wireType); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

func decodeReactionBody(buf []byte) (*ReactionBody, error) {
	b := &ReactionBody{}
	r := &fieldReader{buf: buf}
	for !r.done() {
		tag, wireType, err := r.readTag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case 1:
			v, err := r.readVarint()
			if err != nil {
				return nil, err
			}
			b.Type = ReactionType(v)
		case 2:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			target, err := decodeCastId(sub)
			if err != nil {
				return nil, err
			}
			b.Target = *target
		default:
			if err := r.skip(wireType); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

// DecodeMessage is the inverse of EncodeMessage.
func DecodeMessage(buf []byte) (*Message, error) {
	m := &Message{}
	r := &fieldReader{buf: buf}

	for !r.done() {
		tag, wireType, err := r.readTag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagEnvelopeData:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			data, err := DecodeData(sub)
			if err != nil {
				return nil, err
			}
			m.Data = *data
		case tagEnvelopeHash:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			if err := fixedBytes(m.Hash[:], sub, "hash"); err != nil {
				return nil, err
			}
		case tagEnvelopeHashScheme:
			v, err := r.readVarint()
			if err != nil {
				return nil, err
			}
			m.HashScheme = HashScheme(v)
		case tagEnvelopeSignature:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			m.Signature = append([]byte(nil), sub...)
		case tagEnvelopeSignatureScheme:
			v, err := r.readVarint()
			if err != nil {
				return nil, err
			}
			m.SignatureScheme = SignatureScheme(v)
		case tagEnvelopeSigner:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			m.Signer = append([]byte(nil), sub...)
		default:
			if err := r.skip(wireType); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func decodeVerificationAddBody(buf []byte) (*VerificationAddBody, error) {
	b := &VerificationAddBody{}
	r := &fieldReader{buf: buf}
	for !r.done() {
		tag, wireType, err := r.readTag()
		if err != nil {
			return nil, err
		}
		switch tag {
		case 1:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			if err := fixedBytes(b.Address[:], sub, "address"); err != nil {
				return nil, err
			}
		case 2:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			if err := fixedBytes(b.BlockHash[:], sub, "block_hash"); err != nil {
				return nil, err
			}
		case 3:
			sub, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			b.EthSignature = append([]byte(nil), sub...)
		default:
			if err := r.skip(wireType); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}
