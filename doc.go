// Package hushwire implements the real-time messaging protocol client for
// the hushwire chat service.
//
// The client maintains a persistent WebSocket connection to the chat server,
// encrypts and signs outbound message payloads, recovers the connection with
// exponential backoff under network instability, tracks the server clock
// offset, and classifies inbound envelopes into typed domain events.
//
// Example:
//
//	opts := hushwire.NewOptions()
//	opts.Endpoint = "wss://chat.example.com/ws"
//	opts.Username = "alice"
//	opts.UserID = 42
//	opts.Tokens = auth.NewStaticTokenSource(token, nil)
//
//	client, err := hushwire.NewClient(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client.OnTextMessage(func(msg *hushwire.Message) {
//	    fmt.Printf("%s: %s\n", msg.FromUsername, msg.Content)
//	})
//
//	if err := client.Connect(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// Persistence, notification presentation and user-id resolution are
// collaborators injected through Options; the protocol layer itself stores
// nothing beyond in-memory session state.
package hushwire
