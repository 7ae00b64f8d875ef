package main

import "hidroweb-scraper/commands"

func main() {
	commands.Execute()
}
