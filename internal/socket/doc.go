// Package socket wraps a single gorilla/websocket connection with a
// buffered read pump, serialized writes, and close-reason capture.
//
// A Client is single-use: once its Messages channel closes the channel
// layer discards it and dials a fresh one.
package socket
