package main

import "github.com/nextlevelbuilder/teamsbot/cmd"

func main() {
	cmd.Execute()
}
