package repository

import (
	"github.com/mrebazaUNIFIED/loanbridge-relayer/db"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/repository/postgres"
)

type Repo struct {
	BridgeEvents entity.BridgeEventsRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		BridgeEvents: postgres.NewBridgeEventsRepo("bridge_events", db),
	}
}
