package simulate

import "os"

// ShowHelp prints usage for the simulator binary.
func ShowHelp() {
	os.Stdout.WriteString(`Sentinel player simulator
=========================

Connects scripted players to a running sentinel instance, pushes game state
and network events for a number of rounds, then checks that cheaters lost
trust while honest players kept it.

Usage:
  simulate [options]

Options:
  -url string          Base URL of the service (default "http://localhost:9080")
  -secret string       Shared secret of the service (default $SENTINEL_TOKEN__SECRET)
  -players int         Number of simulated players (default 20)
  -teleporters int     Players that jump across the map (default 2)
  -spammers int        Players that flood one event (default 2)
  -first-id int        Player id of the first simulated player (default 1)
  -rounds int          Rounds to play (default 5)
  -interval duration   Pause between rounds (default 1.5s)
  -burst int           Events a spammer sends per round (default 40)
  -settle duration     Wait before reading results (default 2s)
  -workers int         Concurrent request workers (default 8)
  -timeout duration    Per-request timeout (default 10s)
  -verbose             Log every player's result
  -help                Show this help message

Examples:
  simulate
  simulate -players 200 -teleporters 10 -spammers 10 -url http://localhost:8080
`)
}
