package main

import "github.com/turtacn/covenantwatch/cmd/cli"

// main 是 cwctl 命令行工具的入口点
func main() {
	cli.Execute()
}
