// Package protocol defines the command envelopes exchanged with raco MCP
// servers.
//
// A request names a command kind and carries a typed payload; the response
// echoes the command and request id and reports a status:
//
//	req := protocol.NewRequest(protocol.CommandQuery, filesystem.List(".", false))
//	resp := server.HandleRequest(ctx, req)
//	if !resp.Status.IsSuccess() {
//		return errors.New(resp.Status.Message)
//	}
package protocol
