// The main package for the imagecrawler executable.
package main

import (
	"github.com/JakeFAU/product-image-crawler/cmd"
)

func main() {
	cmd.Execute()
}
