// Package main is the entry point for the matchmaking load test binary.
// It provides subcommands for preparing and driving a load test:
//
//   - seed:  write synthetic players to the player store
//   - hosts: register simulated game servers and end their sessions
//   - match: queue seeded players, confirm matches and report timings
//
// Usage:
//
//	loadtest <command> [options]
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "seed":
		runSeed(os.Args[2:])
	case "hosts":
		runHosts(os.Args[2:])
	case "match":
		runMatch(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: loadtest <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  seed     Write N synthetic players to Postgres")
	fmt.Println("  hosts    Register simulated game servers in Redis and end their sessions")
	fmt.Println("  match    Queue seeded players for a mode and confirm their matches")
	fmt.Println()
	fmt.Println("Run 'loadtest <command> -h' for command-specific options.")
}

// playerID names the i-th synthetic player.
func playerID(prefix string, i int) string {
	return fmt.Sprintf("%s%05d", prefix, i)
}
