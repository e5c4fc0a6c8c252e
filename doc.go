// Package connector bridges DingTalk chatbots to a Moltbot gateway.
//
// A Connector listens for chatbot messages over DingTalk's stream mode,
// forwards each one to the gateway's OpenAI-compatible chat completions
// API, and renders the streamed response back into the chat. When the
// conversation supports AI streaming cards the reply grows in place as
// fragments arrive; otherwise the connector falls back to a single plain
// text reply once the stream ends.
//
// # Usage
//
//	conn, err := connector.New(connector.Overrides{
//		ClientID:     ptr.Ptr("dingXXX"),
//		ClientSecret: ptr.Ptr("secret"),
//	}, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := conn.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Configuration not supplied explicitly is resolved from environment
// variables, then defaults; see Overrides and ResolveConfig.
package connector
