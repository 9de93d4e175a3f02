package main

import "github.com/rpcpool/banking-stage-sidecar/cmd"

func main() {
	cmd.Execute()
}
