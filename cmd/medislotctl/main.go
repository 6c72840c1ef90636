package main

import "medislot/cmd/medislotctl/cmd"

func main() {
	cmd.Execute()
}
