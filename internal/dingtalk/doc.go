// Package dingtalk implements the DingTalk open-platform collaborators the
// connector needs: stream-mode callback listening, access token caching, AI
// streaming cards, session-webhook replies, and media upload.
//
// Two API hosts are involved. The legacy host (oapi.dingtalk.com) serves
// token issuance and media upload; the current host (api.dingtalk.com)
// serves the card APIs. Clients in this package take their base URL as a
// constructor argument so tests can point them at local servers.
package dingtalk
