// Package push is the one-way notification channel of the admin surface.
// Browsers subscribe over a websocket at /ws and receive short text frames
// for mode changes and firmware upload progress.
package push
