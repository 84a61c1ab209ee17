// Command strata-client is a convenience REPL for the KV protocol: it reads
// whitespace-delimited commands from standard input, one per line, and
// prints the decoded response — or, given -script, replays a file of
// commands non-interactively as independent requests.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nyasuto/strata/internal/client"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:6666", "strata-server KV TCP address")
		scriptPath = flag.String("script", "", "replay commands from this file instead of reading stdin interactively")
		timeout    = flag.Duration("timeout", 5*time.Second, "dial timeout")
		help       = flag.Bool("help", false, "show help")
	)
	flag.Parse()

	if *help {
		fmt.Println("strata-client - REPL/script client for strata-server")
		fmt.Println("\nUsage:")
		fmt.Println("  strata-client [options]")
		fmt.Println("\nCommands (one per line, from stdin or -script):")
		fmt.Println("  read <key>")
		fmt.Println("  write <key> <value>")
		fmt.Println("  delete <key>")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	c, err := client.Dial(*addr, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "strata-client: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if *scriptPath != "" {
		runScript(c, *scriptPath)
		return
	}
	runREPL(c)
}

func runScript(c *client.Client, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "strata-client: read script: %v\n", err)
		os.Exit(1)
	}
	commands, err := client.ParseScript(strings.Split(string(data), "\n"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "strata-client: %v\n", err)
		os.Exit(1)
	}

	exitCode := 0
	for _, result := range client.RunScript(c, commands) {
		printResult(result)
		if result.Err != nil {
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

func runREPL(c *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		commands, err := client.ParseScript([]string{line})
		if err != nil {
			fmt.Fprintf(os.Stderr, "strata-client: %v\n", err)
			continue
		}
		for _, result := range client.RunScript(c, commands) {
			printResult(result)
		}
	}
}

func printResult(r client.ScriptResult) {
	if r.Err != nil {
		fmt.Printf("error: %v\n", r.Err)
		return
	}
	switch r.Command.Kind {
	case "read":
		if r.Found {
			fmt.Printf("%q\n", r.Value)
		} else {
			fmt.Println("(not found)")
		}
	default:
		fmt.Println("ok")
	}
}
