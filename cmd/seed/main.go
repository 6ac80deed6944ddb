// Command main runs the database seeder for the marketplace.
package main

import (
	"context"
	"flag"
	"log"

	"marketplace/internal/config"
	"marketplace/internal/database"
	"marketplace/internal/middleware"
	"marketplace/internal/observability"
	"marketplace/internal/seed"
)

func main() {
	// Parse command line flags
	numUsers := flag.Int("users", 30, "Number of users to create")
	numPosts := flag.Int("posts", 120, "Number of content items to publish")
	numSubs := flag.Int("subscriptions", 40, "Number of saved searches to create")
	numCatalogues := flag.Int("catalogues", 5, "Number of merchand catalogues to publish")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	seedValue := flag.Int64("seed", 0, "Fake data seed (0 uses the clock)")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d users, %d posts, clean=%v\n", *numUsers, *numPosts, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.SetLogger(observability.SetupLogger(cfg.Env))

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	opts := seed.Options{
		NumUsers:         *numUsers,
		NumPosts:         *numPosts,
		NumSubscriptions: *numSubs,
		NumCatalogues:    *numCatalogues,
		ShouldClean:      *shouldClean,
		Seed:             *seedValue,
	}
	s, err := seed.NewSeeder(db, opts)
	if err != nil {
		log.Fatalf("❌ Seeder setup failed: %v", err)
	}
	if _, err := s.Run(context.Background(), opts); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! Your database is now populated with test data.")
}
