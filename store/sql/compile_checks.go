package sqlstore

import "github.com/goliatone/go-mtd/core"

var (
	_ core.TokenStore             = (*TokenStore)(nil)
	_ core.ReturnStore            = (*ReturnStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
