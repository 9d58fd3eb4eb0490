package main

import (
	"github.com/advtxt/advtxt-db-mongo/pkg/cli"
)

func main() {
	cli.Execute(cli.NewServiceCommand(cli.ServiceCommandOptions{
		Name:        "advtxt-db",
		Description: "MongoDB storage adapter for advtxt",
		EnvPrefix:   "ADVTXT",
	}))
}
