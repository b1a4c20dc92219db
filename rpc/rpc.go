package rpc

// RPCResponse pairs an RPC's result with whatever error occurred
// producing it.
type RPCResponse struct {
	Response interface{}
	Error    error
}

// RPC is an inbound request awaiting a response. The Hub's dispatch
// loop reads these off a transport's Consumer channel and calls
// Respond exactly once.
type RPC struct {
	Command  interface{}
	RespChan chan<- RPCResponse
}

// Respond delivers resp/err back to the waiting caller.
func (r *RPC) Respond(resp interface{}, err error) {
	r.RespChan <- RPCResponse{Response: resp, Error: err}
}
