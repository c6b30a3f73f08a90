// Command sandbox-init is the helper the sandbox engine starts inside fresh namespaces.
// It reads a run request on stdin, applies limits, then execs the user program.
package main

import "nitz/internal/judge/sandbox/initproc"

func main() {
	initproc.Main()
}
