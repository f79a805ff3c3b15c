// Command qrgen renders a payment deep link as a QR code without running
// the web server. Useful for printing a static "scan to tip" sticker.
//
//	qrgen --pa alice@okbank --name alice --amount 100 -o alice.png
//	qrgen --pa alice@okbank --name alice --amount 100 --terminal
//
// It applies the same rules as the web app: the payment id must look like
// name@bank and the amount must be a positive whole number.
package main

import (
	"fmt"
	"os"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
