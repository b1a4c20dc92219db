package common

import "testing"

func TestHubErrFormatsWithAndWithoutWrapped(t *testing.T) {
	bare := NewHubErr(MalformedBytes, "missing body")
	if bare.Error() != "MalformedBytes: missing body" {
		t.Fatalf("unexpected bare error message: %q", bare.Error())
	}

	inner := NewHubErr(StorageCorruption, "disk")
	wrapped := WrapHubErr(RpcTimeout, "GetInfo", inner)
	if wrapped.Unwrap() != inner {
		t.Fatalf("expected Unwrap to return the wrapped error")
	}
}

func TestIsMatchesKindThroughTypedError(t *testing.T) {
	err := NewHubErr(UnauthorizedSigner, "signer not active")
	if !Is(err, UnauthorizedSigner) {
		t.Fatalf("expected Is to match the error's own kind")
	}
	if Is(err, BadSignature) {
		t.Fatalf("expected Is to reject a different kind")
	}
	if Is(nil, UnauthorizedSigner) {
		t.Fatalf("expected Is to reject a nil error")
	}
}

func TestRetryableAndFatalClassifyKinds(t *testing.T) {
	if !RpcTimeout.Retryable() || !RpcUnavailable.Retryable() || !StoreBusy.Retryable() {
		t.Fatalf("expected all transient kinds to be retryable")
	}
	if MalformedBytes.Retryable() {
		t.Fatalf("expected a rejection kind to not be retryable")
	}
	if !StorageCorruption.Fatal() {
		t.Fatalf("expected StorageCorruption to be fatal")
	}
	if RpcTimeout.Fatal() {
		t.Fatalf("expected a transient kind to not be fatal")
	}
}

func TestEncodeDecodeStringRoundTrip(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	encoded := EncodeToString(data)
	if encoded != "deadbeef" {
		t.Fatalf("expected lowercase hex, got %q", encoded)
	}
	decoded, err := DecodeString(encoded)
	if err != nil {
		t.Fatalf("DecodeString: %v", err)
	}
	if string(decoded) != string(data) {
		t.Fatalf("expected round trip to recover original bytes")
	}
}

func TestRollingSetEvictsOldestPastCapacity(t *testing.T) {
	rs := NewRollingSet(2)
	rs.Add("a")
	rs.Add("b")
	rs.Add("c") // evicts "a"

	if rs.Contains("a") {
		t.Fatalf("expected the oldest key to have rolled off")
	}
	if !rs.Contains("b") || !rs.Contains("c") {
		t.Fatalf("expected the two most recent keys to still be present")
	}
	if rs.Len() != 2 {
		t.Fatalf("expected length to stay at capacity, got %d", rs.Len())
	}
}

func TestRollingSetAddIsIdempotentAndDoesNotReorder(t *testing.T) {
	rs := NewRollingSet(2)
	rs.Add("a")
	rs.Add("b")
	rs.Add("a") // re-adding an existing key must not evict anything
	rs.Add("c") // now evicts "a" since "a" was the oldest insert, unmoved

	if rs.Contains("a") {
		t.Fatalf("expected re-adding an existing key to not protect it from eviction")
	}
	if !rs.Contains("b") || !rs.Contains("c") {
		t.Fatalf("expected b and c to remain")
	}
}

func TestRollingSetUnboundedAtZeroCapacity(t *testing.T) {
	rs := NewRollingSet(0)
	for i := 0; i < 100; i++ {
		rs.Add(string(rune(i)))
	}
	if rs.Len() != 100 {
		t.Fatalf("expected an unbounded rolling set to retain every key, got %d", rs.Len())
	}
}
