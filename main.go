package main

import (
	"transmute/cmd"
	"transmute/config"
)

func main() {
	cmd.Execute(config.Load())
}
