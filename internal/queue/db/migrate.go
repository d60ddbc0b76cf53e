package db

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"fortune-queue/internal/models"
)

// Migrate is the dev bootstrap: create the orders table directly from the
// model. Production deployments run the SQL migrations instead.
func Migrate(db *bun.DB) {
	ctx := context.Background()

	_, err := db.NewCreateTable().Model((*models.Order)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		log.Fatalf("create orders table failed: %v", err)
	}

	log.Println("orders table ready")
}
