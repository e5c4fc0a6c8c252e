// ABOUTME: Entry point for the dingtalk-moltbot connector binary
// ABOUTME: Bridges DingTalk chatbot messages to a Moltbot gateway

package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
