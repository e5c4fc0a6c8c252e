// Package dedupe drops redelivered chatbot callbacks. The platform
// redelivers a callback when it is not acked quickly, which long streamed
// responses make easy to hit; a bounded seen-cache keyed by message id
// catches the duplicates before any processing happens.
package dedupe
