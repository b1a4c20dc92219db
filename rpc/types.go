// Package rpc implements the five sync RPCs (§6) and the two
// transports that carry them: an in-memory transport for tests and a
// JSON-over-TCP transport for real peers, both grounded on the same
// request/response/consumer-channel pattern the Hub's gossip
// transport used internally.
package rpc

import "github.com/farcasterxyz/hubcore/common"

// GetInfoRequest carries no fields; GetInfo reports the peer's own
// state (§6).
type GetInfoRequest struct{}

// GetInfoResponse is GetInfo's reply (§6). RootHash is hex-lowercase,
// per "All returned hashes are hex-lowercase strings."
type GetInfoResponse struct {
	Version  string `json:"version"`
	IsSynced bool   `json:"is_synced"`
	Nickname string `json:"nickname"`
	RootHash string `json:"root_hash"`
}

// GetAllSyncIdsByPrefixRequest asks a peer for every Sync ID under a
// trie prefix (§6). Prefix is raw bytes.
type GetAllSyncIdsByPrefixRequest struct {
	Prefix []byte `json:"prefix"`
}

// GetAllSyncIdsByPrefixResponse is the hex-encoded Sync ID list.
type GetAllSyncIdsByPrefixResponse struct {
	SyncIds []string `json:"sync_ids"`
}

// GetAllMessagesBySyncIdsRequest asks a peer to resolve Sync IDs to
// their full messages (§6, §4.5 step 4).
type GetAllMessagesBySyncIdsRequest struct {
	SyncIds []string `json:"sync_ids"`
}

// GetAllMessagesBySyncIdsResponse carries canonically-encoded Message
// envelopes (§6 "Canonical message encoding"), hex-encoded for the
// JSON transport.
type GetAllMessagesBySyncIdsResponse struct {
	Messages []string `json:"messages"`
}

// GetSyncMetadataByPrefixRequest asks for one level of trie structure
// under a prefix (§6).
type GetSyncMetadataByPrefixRequest struct {
	Prefix []byte `json:"prefix"`
}

// GetSyncMetadataByPrefixResponse mirrors synctrie.Metadata over the
// wire (§4.4 metadata(p), §6).
type GetSyncMetadataByPrefixResponse struct {
	Prefix      []byte `json:"prefix"`
	NumMessages int    `json:"num_messages"`
	Hash        string `json:"hash"`
	Children    []byte `json:"children"`
}

// GetSyncSnapshotByPrefixRequest asks for the exclusion set used by
// divergence detection (§4.4 snapshot(p), §4.5 step 2).
type GetSyncSnapshotByPrefixRequest struct {
	Prefix []byte `json:"prefix"`
}

// GetSyncSnapshotByPrefixResponse mirrors synctrie.Snapshot over the
// wire.
type GetSyncSnapshotByPrefixResponse struct {
	Prefix         []byte   `json:"prefix"`
	ExcludedHashes []string `json:"excluded_hashes"`
	NumMessages    int      `json:"num_messages"`
	RootHash       string   `json:"root_hash"`
}

func hashString(h [20]byte) string {
	return common.EncodeToString(h[:])
}
