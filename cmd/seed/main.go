// Command seed fills the DynamoDB tables with demo rows for local development against LocalStack
// and prints an access token for the seeded user. Rows written while a screen is mounted arrive
// over the change feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/lostfound-sync/internal/config"
	"github.com/lostfound-sync/internal/domain"
	"github.com/lostfound-sync/internal/infrastructure/dynamo"
	jwtinfra "github.com/lostfound-sync/internal/infrastructure/jwt"
	"github.com/lostfound-sync/internal/pkg/id"
)

func main() {
	userID := flag.String("user", "demo-user", "owner of the seeded notifications")
	claim := flag.Bool("claim", false, "after seeding, claim the found item and mark the lost request found")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}
	cfg := config.Load()
	if cfg.Backend != config.BackendAWS {
		log.Fatalf("seed supports BACKEND=%s only, got %q", config.BackendAWS, cfg.Backend)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("aws config: %v", err)
	}
	client := dynamo.NewClient(awsCfg, cfg)
	dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
	store := dynamo.NewStore(client, cfg.DynamoTables)

	now := time.Now().UTC()
	soon := now.Add(time.Hour)
	lat, lon := 52.5200, 13.4050

	notifications := []domain.Notification{
		{NotificationID: id.Prefixed("ntf"), UserID: *userID, Type: domain.NotificationMatch, Title: "Possible match", Body: "A found wallet matches your request", CreatedAt: now.Add(-2 * time.Minute)},
		{NotificationID: id.Prefixed("ntf"), UserID: *userID, Type: domain.NotificationMessage, Title: "New message", Body: "Is this still available?", CreatedAt: now.Add(-time.Hour)},
		{NotificationID: id.Prefixed("ntf"), UserID: *userID, Type: domain.NotificationReminder, Title: "Pickup reminder", Body: "Collect your keys at the front desk", CreatedAt: now, ExpiresAt: &soon},
	}
	for i := range notifications {
		if err := store.Notifications.Put(ctx, &notifications[i]); err != nil {
			log.Fatalf("put notification: %v", err)
		}
	}

	found := domain.FoundItem{ItemID: id.Prefixed("fnd"), UserID: *userID, Title: "Brown leather wallet", Category: "wallets", Status: domain.StatusAvailable, Latitude: &lat, Longitude: &lon, CreatedAt: now.Add(-3 * time.Hour)}
	if err := store.Found.Put(ctx, &found); err != nil {
		log.Fatalf("put found item: %v", err)
	}
	lost := domain.LostRequest{RequestID: id.Prefixed("lst"), UserID: *userID, Title: "Vintage camera", Category: "electronics", Status: domain.StatusSearching, Reward: 50, IsRare: true, CreatedAt: now.Add(-30 * time.Minute)}
	if err := store.Lost.Put(ctx, &lost); err != nil {
		log.Fatalf("put lost request: %v", err)
	}

	if *claim {
		if err := store.Found.Update(ctx, found.ItemID, map[string]interface{}{"status": domain.StatusClaimed}); err != nil {
			log.Fatalf("claim found item: %v", err)
		}
		if err := store.Lost.Update(ctx, lost.RequestID, map[string]interface{}{"status": domain.StatusFound}); err != nil {
			log.Fatalf("resolve lost request: %v", err)
		}
	}

	check, err := store.Notifications.Get(ctx, notifications[0].NotificationID)
	if err != nil {
		log.Fatalf("read back notification: %v", err)
	}
	log.Printf("Seeded %d notifications (first %s), found item %s, lost request %s",
		len(notifications), check.NotificationID, found.ItemID, lost.RequestID)

	if cfg.JWTSecret == "" {
		return
	}
	p, err := jwtinfra.NewProvider(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("jwt provider: %v", err)
	}
	token, err := p.Sign(*userID, domain.RoleAuthenticated, 24*time.Hour)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
}
