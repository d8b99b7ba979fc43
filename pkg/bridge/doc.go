// ABOUTME: Websocket bridge package
// ABOUTME: Remote hosts drive sessions over JSON messages on /control
// Package bridge exposes the session handle API over a websocket.
//
// A host connects to /control, receives a server/hello message and then
// sends one JSON request per operation:
//
//	{"id":"1","op":"play","handle":0,"backend":"auto"}
//
// Every request is answered with a session/result message carrying the
// handle to keep, the latched error and the session state. State changes
// of every session are broadcast to every connection as session/state
// messages. Sessions allocated by a connection are deleted when it closes.
package bridge
