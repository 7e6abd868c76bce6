package main

import "github.com/dbsmedya/gofkdump/cmd/gofkdump/cmd"

func main() {
	cmd.Execute()
}
