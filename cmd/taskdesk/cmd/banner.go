package cmd

import (
	"fmt"
	"io"
)

const banner = `
  _            _       _           _    
 | |_ __ _ ___| | ____| | ___  ___| | __
 | __/ _` + "`" + ` / __| |/ / _` + "`" + ` |/ _ \/ __| |/ /
 | || (_| \__ \   < (_| |  __/\__ \   < 
  \__\__,_|___/_|\_\__,_|\___||___/_|\_\
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Task client - Version %s\x1b[0m\n\n", Version)
}
