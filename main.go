// Command scraper is the entry point of the resumable paginated scraper.
package main

import (
	"os"

	"github.com/JakeFAU/paginated-scraper/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
