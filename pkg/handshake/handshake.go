// Package handshake runs the augmented PAKE handshake over a framed byte
// stream.
//
// The Server is long-lived. It accepts one registration and then runs
// sessions back to back, restarting whenever a message arrives out of turn.
// The Client is driven by its caller: every Handshake call is one attempt
// and any deviation fails that attempt.
//
// # Protocol Flow
//
//	Client                                 Server
//	------                                 ------
//	Register()          Registration -->   store verifier
//	                    <-- Nonce          begin session
//	Handshake()         Nonce -->          agree SSID
//	                    Username -->       look up credential
//	                    <-- AugmentationInfo
//	                    PublicKey -->
//	                    <-- PublicKey
//	                    Authenticator -->  verify
//	                    <-- Authenticator  (explicit mode only)
//	key                                    key, next Nonce
//
// In implicit mode both sides derive the key after the public key exchange
// and the Authenticator round is skipped.
//
// # Usage
//
//	srv, err := handshake.NewServer(handshake.ServerConfig{
//	    Transport: port,
//	    Store:     store,
//	})
//	err = srv.Serve(ctx)
//
//	c, err := handshake.NewClient(handshake.ClientConfig{Transport: port})
//	err = c.Register(ctx, user, pw, pake.DefaultParams)
//	res, err := c.Handshake(ctx, user, pw)
package handshake
