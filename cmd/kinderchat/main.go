package main

import "github.com/C2SE29-Capstone2/kinderchat/cmd/kinderchat/cmd"

func main() {
	cmd.Execute()
}
