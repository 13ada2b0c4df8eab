package main

import (
	"os"

	"github.com/GPTx-global/gora/oracle/log"
)

func main() {
	log.InitLogger()

	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
