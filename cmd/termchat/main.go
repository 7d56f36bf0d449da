package main

import "github.com/lu-zhengda/termchat/internal/cli"

func main() {
	cli.Execute()
}
