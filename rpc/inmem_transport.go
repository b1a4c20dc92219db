package rpc

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewInmemAddr returns a fresh random address, for tests that wire up
// several in-memory peers without real sockets.
func NewInmemAddr() string {
	return uuid.NewString()
}

// InmemTransport implements Transport entirely in-process, for tests
// and for single-binary local Hub clusters.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localAddr  string
	peers      map[string]*InmemTransport
	timeout    time.Duration
}

// NewInmemTransport returns addr (generated if empty) and a transport
// bound to it.
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	return addr, &InmemTransport{
		consumerCh: make(chan RPC, 16),
		localAddr:  addr,
		peers:      make(map[string]*InmemTransport),
		timeout:    15 * time.Second,
	}
}

// Connect registers t as reachable at peer's address for routing.
func (i *InmemTransport) Connect(peer string, t *InmemTransport) {
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = t
}

// Disconnect removes a previously connected peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

func (i *InmemTransport) Listen()                {}
func (i *InmemTransport) Consumer() <-chan RPC   { return i.consumerCh }
func (i *InmemTransport) LocalAddr() string      { return i.localAddr }
func (i *InmemTransport) AdvertiseAddr() string  { return i.localAddr }
func (i *InmemTransport) Close() error           { return nil }

func (i *InmemTransport) GetInfo(target string, args *GetInfoRequest, resp *GetInfoResponse) error {
	out, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}
	*resp = *out.(*GetInfoResponse)
	return nil
}

func (i *InmemTransport) GetAllSyncIdsByPrefix(target string, args *GetAllSyncIdsByPrefixRequest, resp *GetAllSyncIdsByPrefixResponse) error {
	out, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}
	*resp = *out.(*GetAllSyncIdsByPrefixResponse)
	return nil
}

func (i *InmemTransport) GetAllMessagesBySyncIds(target string, args *GetAllMessagesBySyncIdsRequest, resp *GetAllMessagesBySyncIdsResponse) error {
	out, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}
	*resp = *out.(*GetAllMessagesBySyncIdsResponse)
	return nil
}

func (i *InmemTransport) GetSyncMetadataByPrefix(target string, args *GetSyncMetadataByPrefixRequest, resp *GetSyncMetadataByPrefixResponse) error {
	out, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}
	*resp = *out.(*GetSyncMetadataByPrefixResponse)
	return nil
}

func (i *InmemTransport) GetSyncSnapshotByPrefix(target string, args *GetSyncSnapshotByPrefixRequest, resp *GetSyncSnapshotByPrefixResponse) error {
	out, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}
	*resp = *out.(*GetSyncSnapshotByPrefixResponse)
	return nil
}

func (i *InmemTransport) makeRPC(target string, args interface{}) (interface{}, error) {
	i.RLock()
	peer, ok := i.peers[target]
	i.RUnlock()
	if !ok {
		return nil, fmt.Errorf("rpc: no route to peer %q", target)
	}

	respCh := make(chan RPCResponse, 1)
	select {
	case peer.consumerCh <- RPC{Command: args, RespChan: respCh}:
	case <-time.After(i.timeout):
		return nil, fmt.Errorf("rpc: timed out dispatching to %q", target)
	}

	select {
	case resp := <-respCh:
		return resp.Response, resp.Error
	case <-time.After(i.timeout):
		return nil, fmt.Errorf("rpc: %q timed out responding", target)
	}
}
