// Acmebot is a Discord bot with a shell-inspired command language. Commands
// can be composed into pipelines, and cover text manipulation, music
// playback and remote player control.
package main

import (
	"os"

	"github.com/kmolski/acmebot/pkg/prog"
)

func main() {
	os.Exit(prog.Run([3]*os.File{os.Stdin, os.Stdout, os.Stderr}, os.Args))
}
