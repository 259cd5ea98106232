// Package session implements the client side of the secure session
// protocol.
//
// After Connect the server sends its RSA public key in plaintext. The
// client answers with a fresh AES session key sealed under RSA-OAEP
// (SHA-512), and from then on every frame in both directions is encrypted
// with that key. Application messages are held back until the server
// accepts an access code submitted with SendCode:
//
//	client, err := session.New[Message](addr, nil)
//	client.OnCodeEvaluation(func(ok bool) { ... })
//	client.OnData(func(m Message) { ... })
//	if err := client.Connect(ctx); err != nil { ... }
//	if err := client.WaitForHandshake(ctx); err != nil { ... }
//	client.SendCode("1234")
//
// Send and SendCode never return errors; every failure after Connect is
// delivered to the OnError handler as a *protocol.Error.
package session
