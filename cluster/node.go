package cluster

import (
	"fmt"

	"ringdht/cache"
)

// Node is the coordinator's bookkeeping for one backing cache server: its
// stable identity, its position on the ring, its cache-client handle, and
// the authoritative local set of keys the coordinator believes it holds.
type Node struct {
	Name     string
	Host     string
	Port     int
	Position int

	Client cache.Client
	Keys   map[string]struct{}
}

func newNode(name, host string, port, position int, client cache.Client) *Node {
	return &Node{
		Name:     name,
		Host:     host,
		Port:     port,
		Position: position,
		Client:   client,
		Keys:     make(map[string]struct{}),
	}
}

// Address is the node's dial string, host:port.
func (n *Node) Address() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

func (n *Node) hasKey(k string) bool {
	_, ok := n.Keys[k]
	return ok
}

func (n *Node) addKey(k string) {
	n.Keys[k] = struct{}{}
}

func (n *Node) removeKey(k string) {
	delete(n.Keys, k)
}

// keySlice snapshots the node's key set as a slice, for iteration that may
// mutate the set concurrently with traversal.
func (n *Node) keySlice() []string {
	out := make([]string, 0, len(n.Keys))
	for k := range n.Keys {
		out = append(out, k)
	}
	return out
}
