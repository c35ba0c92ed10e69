// Package config provides configuration parsing for the arena command.
//
// The configuration is stored in arena.yaml (or arena.json) in the working
// directory or one of its parents. Values can be overridden with ARENA_*
// environment variables, optionally loaded from a .env file.
//
// # Configuration File Structure
//
//	client:
//	  masterAddress: localhost:9090
//	  appId: my-game
//	  appVersion: "1.0"
//	  playerName: ann
//	  keepAliveMs: 3000
//	  auth:
//	    type: 0
//	    params: user=ann&token=secret
//	log:
//	  level: info
//	  format: text
//	metrics:
//	  addr: :9100
//	authServer:
//	  addr: :8081
//	  credentials:
//	    ann: secret
//	devServer:
//	  masterAddr: :9090
//	  gameAddr: :9091
//
// # Usage
//
//	cfg, err := config.LoadFromWorkingDir()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := loadbalancing.New(cfg.ClientConfig())
package config
