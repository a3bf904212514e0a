package main

import (
	"fmt"

	"github.com/roelfdiedericks/voicenav/internal/session"
)

type SessionNewCmd struct{}

func (SessionNewCmd) Run() error {
	fmt.Println(session.New())
	return nil
}
