package main

import (
	"github.com/dcn-collector/cmd/agent"
)

func main() {
	agent.Execute()
}
