package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/dealerdesk/internal/dbx"
	"github.com/dmitrijs2005/dealerdesk/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/dealerdesk/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can run
// them against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	ResetTokens(db dbx.DBTX) resettokens.Repository
}
