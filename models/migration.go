package models

import (
	"log"

	"github.com/controlink-dev/winmax4-sync/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&License{},
		&Article{}, &ArticlePrice{}, &ArticleStock{}, &ArticleTax{},
		&Entity{},
		&Family{}, &SubFamily{}, &SubSubFamily{},
		&Tax{}, &TaxRate{},
		&Warehouse{}, &DocumentType{}, &PaymentType{}, &Currency{},
		&Document{}, &DocumentDetail{}, &DocumentTax{}, &DocumentRelation{},
		&SyncStatus{}, &SyncRun{}, &SyncRunError{}, &SyncBatch{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
