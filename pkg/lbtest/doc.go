// Package lbtest provides an in-process master and game server for testing
// arena clients.
//
// The servers speak the same framed tagged-JSON protocol as production
// servers: they send a session id on connect, authenticate clients, keep a
// lobby room list, hand out game-server addresses and relay room traffic
// (joins, leaves, property changes and custom events) between actors.
//
// # Quick Start
//
//	func TestJoin(t *testing.T) {
//	    srv := lbtest.NewT(t, lbtest.Config{})
//
//	    cfg := loadbalancing.DefaultConfig()
//	    cfg.MasterAddress = srv.MasterAddress()
//	    client := loadbalancing.New(cfg)
//	    defer client.Close()
//
//	    client.Connect(context.Background())
//	    // ...
//	}
//
// # Custom Authentication
//
// Set Config.Verifier to check the custom-auth parameters clients send to
// the master. A rejected client receives error code 32755.
//
// # Failure Injection
//
// DropGameClients closes every game connection without a close frame, which
// clients observe as a timeout.
package lbtest
