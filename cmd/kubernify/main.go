// Command kubernify verifies that a Kubernetes namespace's workloads
// have converged on the versions recorded in a manifest.
package main

import "github.com/kubernify/kubernify/pkg/kubernify/cmd"

func main() {
	cmd.Execute()
}
