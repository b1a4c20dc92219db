package rpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	rpcGetInfo uint8 = iota
	rpcGetAllSyncIdsByPrefix
	rpcGetAllMessagesBySyncIds
	rpcGetSyncMetadataByPrefix
	rpcGetSyncSnapshotByPrefix
)

const bufSize = 1 << 16

// ErrTransportShutdown is returned by in-flight operations once Close
// has been called.
var ErrTransportShutdown = errors.New("rpc: transport shutdown")

// NetworkTransport is a JSON-over-TCP Transport (§6 RPC service):
// each request is framed by a one-byte RPC type followed by the JSON
// request, and the response is an error string followed by the JSON
// response, both length-implicit via the stream decoder.
type NetworkTransport struct {
	logger *logrus.Entry

	advertise string
	listener  net.Listener

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	consumeCh chan RPC

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	timeout time.Duration
}

type netConn struct {
	target string
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	dec    *json.Decoder
	enc    *json.Encoder
}

func (n *netConn) Release() error { return n.conn.Close() }

// NewNetworkTransport binds bindAddr and returns a transport that
// advertises advertiseAddr (bindAddr if empty) to peers. timeout
// bounds every RPC round trip (§4.5 "Timeouts", default 15s).
func NewNetworkTransport(bindAddr, advertiseAddr string, maxPool int, timeout time.Duration, logger *logrus.Entry) (*NetworkTransport, error) {
	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	if advertiseAddr == "" {
		advertiseAddr = listener.Addr().String()
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &NetworkTransport{
		logger:     logger,
		advertise:  advertiseAddr,
		listener:   listener,
		connPool:   make(map[string][]*netConn),
		maxPool:    maxPool,
		consumeCh:  make(chan RPC),
		shutdownCh: make(chan struct{}),
		timeout:    timeout,
	}, nil
}

func (n *NetworkTransport) Consumer() <-chan RPC  { return n.consumeCh }
func (n *NetworkTransport) LocalAddr() string     { return n.listener.Addr().String() }
func (n *NetworkTransport) AdvertiseAddr() string { return n.advertise }

func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()
	if !n.shutdown {
		close(n.shutdownCh)
		n.listener.Close()
		n.shutdown = true
	}
	return nil
}

func (n *NetworkTransport) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()
	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}
	num := len(conns)
	conn := conns[num-1]
	n.connPool[target] = conns[:num-1]
	return conn
}

func (n *NetworkTransport) getConn(target string) (*netConn, error) {
	if conn := n.getPooledConn(target); conn != nil {
		return conn, nil
	}
	conn, err := net.DialTimeout("tcp", target, n.timeout)
	if err != nil {
		return nil, err
	}
	nc := &netConn{
		target: target,
		conn:   conn,
		r:      bufio.NewReaderSize(conn, bufSize),
		w:      bufio.NewWriterSize(conn, bufSize),
	}
	nc.dec = json.NewDecoder(nc.r)
	nc.enc = json.NewEncoder(nc.w)
	return nc, nil
}

func (n *NetworkTransport) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()
	conns := n.connPool[conn.target]
	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[conn.target] = append(conns, conn)
	} else {
		conn.Release()
	}
}

func (n *NetworkTransport) genericRPC(target string, rpcType uint8, args, resp interface{}) error {
	conn, err := n.getConn(target)
	if err != nil {
		return err
	}
	if n.timeout > 0 {
		conn.conn.SetDeadline(time.Now().Add(n.timeout))
	}
	if err := sendRPC(conn, rpcType, args); err != nil {
		return err
	}
	canReturn, err := decodeResponse(conn, resp)
	if canReturn {
		n.returnConn(conn)
	}
	return err
}

func sendRPC(conn *netConn, rpcType uint8, args interface{}) error {
	if err := conn.w.WriteByte(rpcType); err != nil {
		conn.Release()
		return err
	}
	if err := conn.enc.Encode(args); err != nil {
		conn.Release()
		return err
	}
	return conn.w.Flush()
}

func decodeResponse(conn *netConn, resp interface{}) (bool, error) {
	var rpcErr string
	if err := conn.dec.Decode(&rpcErr); err != nil {
		conn.Release()
		return false, err
	}
	if err := conn.dec.Decode(resp); err != nil {
		conn.Release()
		return false, err
	}
	if rpcErr != "" {
		return true, fmt.Errorf(rpcErr)
	}
	return true, nil
}

func (n *NetworkTransport) GetInfo(target string, args *GetInfoRequest, resp *GetInfoResponse) error {
	return n.genericRPC(target, rpcGetInfo, args, resp)
}

func (n *NetworkTransport) GetAllSyncIdsByPrefix(target string, args *GetAllSyncIdsByPrefixRequest, resp *GetAllSyncIdsByPrefixResponse) error {
	return n.genericRPC(target, rpcGetAllSyncIdsByPrefix, args, resp)
}

func (n *NetworkTransport) GetAllMessagesBySyncIds(target string, args *GetAllMessagesBySyncIdsRequest, resp *GetAllMessagesBySyncIdsResponse) error {
	return n.genericRPC(target, rpcGetAllMessagesBySyncIds, args, resp)
}

func (n *NetworkTransport) GetSyncMetadataByPrefix(target string, args *GetSyncMetadataByPrefixRequest, resp *GetSyncMetadataByPrefixResponse) error {
	return n.genericRPC(target, rpcGetSyncMetadataByPrefix, args, resp)
}

func (n *NetworkTransport) GetSyncSnapshotByPrefix(target string, args *GetSyncSnapshotByPrefixRequest, resp *GetSyncSnapshotByPrefixResponse) error {
	return n.genericRPC(target, rpcGetSyncSnapshotByPrefix, args, resp)
}

// Listen accepts inbound connections until Close is called.
func (n *NetworkTransport) Listen() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithError(err).Error("rpc: failed to accept connection")
			continue
		}
		go n.handleConn(conn)
	}
}

func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReaderSize(conn, bufSize)
	w := bufio.NewWriterSize(conn, bufSize)
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	for {
		if err := n.handleCommand(r, dec, enc); err != nil {
			if !errors.Is(err, ErrTransportShutdown) && err != io.EOF {
				n.logger.WithError(err).Error("rpc: failed to decode incoming command")
			}
			return
		}
		if err := w.Flush(); err != nil {
			n.logger.WithError(err).Error("rpc: failed to flush response")
			return
		}
	}
}

func (n *NetworkTransport) handleCommand(r *bufio.Reader, dec *json.Decoder, enc *json.Encoder) error {
	rpcType, err := r.ReadByte()
	if err != nil {
		return err
	}

	respCh := make(chan RPCResponse, 1)
	req := RPC{RespChan: respCh}

	switch rpcType {
	case rpcGetInfo:
		var args GetInfoRequest
		if err := dec.Decode(&args); err != nil {
			return err
		}
		req.Command = &args
	case rpcGetAllSyncIdsByPrefix:
		var args GetAllSyncIdsByPrefixRequest
		if err := dec.Decode(&args); err != nil {
			return err
		}
		req.Command = &args
	case rpcGetAllMessagesBySyncIds:
		var args GetAllMessagesBySyncIdsRequest
		if err := dec.Decode(&args); err != nil {
			return err
		}
		req.Command = &args
	case rpcGetSyncMetadataByPrefix:
		var args GetSyncMetadataByPrefixRequest
		if err := dec.Decode(&args); err != nil {
			return err
		}
		req.Command = &args
	case rpcGetSyncSnapshotByPrefix:
		var args GetSyncSnapshotByPrefixRequest
		if err := dec.Decode(&args); err != nil {
			return err
		}
		req.Command = &args
	default:
		return fmt.Errorf("rpc: unknown rpc type %d", rpcType)
	}

	select {
	case n.consumeCh <- req:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	select {
	case resp := <-respCh:
		errStr := ""
		if resp.Error != nil {
			errStr = resp.Error.Error()
		}
		if err := enc.Encode(errStr); err != nil {
			return err
		}
		return enc.Encode(resp.Response)
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}
}
