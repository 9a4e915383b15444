package main

import (
	cmd "github.com/kerbaras/mapareas/cmd/mapareas"
)

func main() {
	cmd.Execute()
}
