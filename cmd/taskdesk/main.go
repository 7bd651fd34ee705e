package main

import "github.com/jmcleod/taskdesk/cmd/taskdesk/cmd"

func main() {
	cmd.Execute()
}
