// Command rdsgraph parses RDS reference designations, imports equipment
// sheets into an object graph and a power-distribution graph, and answers
// supply-chain topology queries from the command line or over HTTP.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
