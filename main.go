// Command forgectl is the entrypoint for the autonomous coding agent
// core: a cobra CLI driving the Orchestrator against a local workspace.
package main

import "github.com/forgekit/agentcore/cmd"

func main() {
	cmd.Execute()
}
