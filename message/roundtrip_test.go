package message

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeCastAddRoundTrip(t *testing.T) {
	d := &Data{
		Type:      TypeCastAdd,
		Fid:       42,
		Timestamp: 123456,
		Network:   NetworkMainnet,
		CastAdd: &CastAddBody{
			Text:              "hello farcaster",
			Embeds:            []Embed{{Url: "https://example.com"}, {CastId: &CastId{Fid: 7, Hash: [20]byte{1, 2, 3}}}},
			Mentions:          []uint64{1, 2},
			MentionsPositions: []uint64{0, 6},
			Parent:            &CastId{Fid: 9, Hash: [20]byte{9, 9, 9}},
		},
	}

	encoded, err := EncodeData(d)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeData(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(d, decoded) {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", decoded, d)
	}
}

func TestEncodeDecodeMessageEnvelopeRoundTrip(t *testing.T) {
	m := &Message{
		Data: Data{
			Type:        TypeUserDataAdd,
			Fid:         1,
			Timestamp:   10,
			Network:     NetworkTestnet,
			UserDataAdd: &UserDataBody{Type: UserDataTypeDisplay, Value: "alice"},
		},
		Hash:            [20]byte{0xAA, 0xBB},
		HashScheme:      HashSchemeBlake3,
		Signature:       []byte{1, 2, 3, 4},
		SignatureScheme: SignatureSchemeEd25519,
		Signer:          []byte{5, 6, 7, 8},
	}

	encoded, err := EncodeMessage(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeMessage(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(m, decoded) {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", decoded, m)
	}
}

func TestEncodeDataDeterministic(t *testing.T) {
	d := &Data{
		Type: TypeReactionAdd, Fid: 5, Timestamp: 1, Network: NetworkMainnet,
		ReactionAdd: &ReactionBody{Type: ReactionTypeLike, Target: CastId{Fid: 2, Hash: [20]byte{1}}},
	}
	a, err := EncodeData(d)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeData(d)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected EncodeData to be deterministic for identical inputs")
	}
}

func TestSyncIDChronologicalOrdering(t *testing.T) {
	a := NewSyncID(100, [26]byte{1})
	b := NewSyncID(200, [26]byte{0}) // lower storage key, later timestamp
	if !a.Less(b) {
		t.Fatalf("expected earlier timestamp to sort first regardless of storage key")
	}
	if a.Timestamp() != 100 || b.Timestamp() != 200 {
		t.Fatalf("expected Timestamp() to round-trip through the decimal prefix")
	}
}

func TestLessAndGreaterAreComplementary(t *testing.T) {
	a := [20]byte{1}
	b := [20]byte{2}
	if !Less(a, b) || Greater(a, b) {
		t.Fatalf("expected Less(a,b) and not Greater(a,b) for a < b")
	}
	if Less(a, a) || Greater(a, a) {
		t.Fatalf("expected neither Less nor Greater to hold for equal hashes")
	}
}
