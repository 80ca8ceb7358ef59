// Package protocol defines the messages pushed to live reload clients.  They follow the shape of JSON-RPC 2.0
// notifications, which clients receive but never answer.
package protocol

// A Notification is a message sent from the server to a client without an ID.
type Notification struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

const (
	Reload = `reload` // the client should refresh the page
	Inject = `inject` // the client should swap its stylesheets in place
)

// Change lists the URL paths of the outputs that changed.
type Change struct {
	Paths []string `json:"paths"`
}
