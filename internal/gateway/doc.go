// Package gateway is an HTTP client for the gateway's OpenAI-compatible
// chat completions API.
//
// The client issues a single streaming POST per conversation turn and hands
// back a Stream that yields content deltas one at a time:
//
//	stream, err := client.StreamChat(ctx, messages)
//	if err != nil { ... }
//	defer stream.Close()
//	for {
//		fragment, err := stream.Recv()
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		...
//	}
//
// Recv returns io.EOF once the server sends the [DONE] terminator or closes
// the stream; any other error means the stream ended early. Non-200
// responses surface as *StatusError carrying the status code and body.
package gateway
