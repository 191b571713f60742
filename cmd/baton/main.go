// Command baton is a multi-tenant chat-to-ACP gateway: it spawns coding
// agents that speak the Agent Client Protocol and bridges them to chat
// transports (or a local terminal) through a shared session manager,
// task queue, and command dispatcher.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
