// rconsole is a Source RCON console, one-shot executor and HTTP gateway.
package main

import "github.com/energizer-project/rconsole/internal/cli"

func main() {
	cli.Execute()
}
