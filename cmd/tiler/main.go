// Command tiler downloads map tiles into a local archive.
package main

import "github.com/yeleibo/tiledl/internal/cmd"

func main() {
	cmd.Execute()
}
