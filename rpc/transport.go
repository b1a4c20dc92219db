package rpc

// Transport lets a Hub reach peers to run the five sync RPCs (§4.5,
// §6), independent of whether the peer is local (tests) or remote
// (TCP).
type Transport interface {
	// Listen starts accepting inbound RPCs. It blocks; callers run it
	// in its own goroutine.
	Listen()

	// Consumer returns the channel inbound RPCs arrive on for the Hub
	// to dispatch and respond to.
	Consumer() <-chan RPC

	// LocalAddr is this transport's bind address.
	LocalAddr() string

	// AdvertiseAddr is the address peers should dial to reach us.
	AdvertiseAddr() string

	GetInfo(target string, args *GetInfoRequest, resp *GetInfoResponse) error
	GetAllSyncIdsByPrefix(target string, args *GetAllSyncIdsByPrefixRequest, resp *GetAllSyncIdsByPrefixResponse) error
	GetAllMessagesBySyncIds(target string, args *GetAllMessagesBySyncIdsRequest, resp *GetAllMessagesBySyncIdsResponse) error
	GetSyncMetadataByPrefix(target string, args *GetSyncMetadataByPrefixRequest, resp *GetSyncMetadataByPrefixResponse) error
	GetSyncSnapshotByPrefix(target string, args *GetSyncSnapshotByPrefixRequest, resp *GetSyncSnapshotByPrefixResponse) error

	// Close permanently shuts the transport down.
	Close() error
}
