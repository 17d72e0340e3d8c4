package main

import "github.com/grailbio/seqpipe/cmd/seqpipe/cmd"

func main() {
	cmd.Run()
}
