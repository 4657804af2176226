// Command ringdht-cli is a line-oriented REPL over an in-process ring,
// mirroring the add_node<...>/remove_node<...>/get<...>/put<...>/display
// command grammar of the original DHT console.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ringdht/cluster"
)

const instructions = `Commands (arguments inside <> are comma-separated, no quotes needed):
1. add_node<name,host,port>
2. remove_node<name>
3. get<key>
4. put<key,value>
5. display
6. menu
7. quit`

func main() {
	ringSize := flag.Int("size", 1024, "ring position space N")
	flag.Parse()

	ring, err := cluster.NewRing(*ringSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not start ring: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("RingDHT console.")
	fmt.Println(instructions)

	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("command: ")
		if !scanner.Scan() {
			return
		}
		command := strings.ToLower(strings.TrimSpace(scanner.Text()))

		switch {
		case command == "quit":
			return
		case command == "menu":
			fmt.Println(instructions)
		case command == "display":
			printDescribe(ring)
		default:
			if err := dispatch(ctx, ring, command); err != nil {
				fmt.Println(err)
			}
		}
	}
}

func dispatch(ctx context.Context, ring *cluster.Ring, command string) error {
	open := strings.Index(command, "<")
	closeIdx := strings.Index(command, ">")
	if open < 0 || closeIdx < open {
		return fmt.Errorf("invalid input")
	}

	cmd := command[:open]
	args := strings.Split(command[open+1:closeIdx], ",")

	switch cmd {
	case "add_node":
		if len(args) != 3 {
			return fmt.Errorf("add_node expects <name,host,port>")
		}
		port, err := strconv.Atoi(strings.TrimSpace(args[2]))
		if err != nil {
			return fmt.Errorf("invalid port: %v", err)
		}
		if err := ring.AddNode(ctx, strings.TrimSpace(args[0]), strings.TrimSpace(args[1]), port); err != nil {
			return err
		}
		fmt.Printf("Node %s joined.\n", args[0])

	case "remove_node":
		if len(args) != 1 {
			return fmt.Errorf("remove_node expects <name>")
		}
		if err := ring.RemoveNode(ctx, strings.TrimSpace(args[0])); err != nil {
			return err
		}
		fmt.Printf("Node %s left.\n", args[0])

	case "get":
		if len(args) != 1 {
			return fmt.Errorf("get expects <key>")
		}
		key := strings.TrimSpace(args[0])
		value, found, err := ring.Get(ctx, key)
		if err != nil {
			return err
		}
		if !found {
			fmt.Printf("No value found for key %s\n", key)
			return nil
		}
		fmt.Printf("The value for key %s is %s\n", key, value)

	case "put":
		if len(args) != 2 {
			return fmt.Errorf("put expects <key,value>")
		}
		key, value := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
		n1, n2, err := ring.Put(ctx, key, value)
		if err != nil {
			return err
		}
		fmt.Printf("Pair (%s,%s) set in nodes %s and %s.\n", key, value, n1, n2)

	default:
		return fmt.Errorf("command not found")
	}
	return nil
}

func printDescribe(ring *cluster.Ring) {
	nodes := ring.Describe()
	fmt.Printf("Ring of size %d with %d node(s):\n", ring.Size(), len(nodes))
	for _, n := range nodes {
		fmt.Printf("  %-12s %-21s position=%-6d keys=%d\n", n.Name, n.Address, n.Position, n.KeyCount)
	}
}
