// Package main is the entry point for the SupNum knowledge base service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/sidi-cnm/supnum-backend/internal/rag"
)

func main() {
	rag.NewApp().Run()
}
