package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"tixledger/internal/config"
	"tixledger/internal/database"
	"tixledger/internal/logger"
	"tixledger/internal/models"
	"tixledger/internal/repository"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

var (
	eventID   = flag.String("event", "", "Event ID to generate ticket types for (random when empty)")
	tiers     = flag.Int("tiers", 3, "Number of ticket tiers to generate")
	currency  = flag.String("currency", "PI", "Currency of generated prices")
	saleHours = flag.Int("sale-hours", 0, "Close the sale window after this many hours (0 = open-ended)")
	dryRun    = flag.Bool("dry-run", false, "Show what would be generated without making changes")
)

var tierNames = []string{"VIP", "Партер", "Амфитеатр", "Балкон", "Входной"}

type TicketTypeGenerator struct {
	ticketTypes *repository.TicketTypeRepository
	rnd         *rand.Rand
}

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Get().Info("Starting ticket type generator...")

	generator := &TicketTypeGenerator{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
	ticketTypes := generator.generateTiers(*eventID, *tiers, time.Now())

	if *dryRun {
		for _, tt := range ticketTypes {
			logger.Get().Info("[DRY RUN] Would create ticket type",
				"event_id", tt.EventID,
				"name", tt.Name,
				"price", tt.Price,
				"quantity", tt.TotalQuantity)
		}
		return
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Get().Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Get().Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	generator.ticketTypes = repository.NewTicketTypeRepository(db)

	if err := generator.insert(context.Background(), ticketTypes); err != nil {
		logger.Get().Error("Failed to generate ticket types", "error", err)
		os.Exit(1)
	}

	logger.Get().Info("Ticket type generation completed successfully!", "count", len(ticketTypes))
}

// generateTiers builds n tiers; cheaper tiers get more tickets.
func (g *TicketTypeGenerator) generateTiers(eventID string, n int, now time.Time) []models.TicketType {
	if eventID == "" {
		eventID = uuid.New().String()
	}
	if n < 1 {
		n = 1
	}
	if n > len(tierNames) {
		n = len(tierNames)
	}

	var saleEnd *time.Time
	if *saleHours > 0 {
		end := now.Add(time.Duration(*saleHours) * time.Hour)
		saleEnd = &end
	}

	ticketTypes := make([]models.TicketType, 0, n)
	for i := 0; i < n; i++ {
		quantity := (i+1)*50 + g.rnd.Intn(50)
		ticketTypes = append(ticketTypes, models.TicketType{
			ID:                uuid.New().String(),
			EventID:           eventID,
			Name:              tierNames[i],
			Price:             g.tierPrice(i),
			Currency:          *currency,
			TotalQuantity:     quantity,
			AvailableQuantity: quantity,
			IsActive:          true,
			SaleEnd:           saleEnd,
		})
	}
	return ticketTypes
}

func (g *TicketTypeGenerator) tierPrice(tier int) int64 {
	basePrice := int64(2000)

	switch {
	case tier == 0:
		return basePrice + int64(g.rnd.Intn(3000)+2000)
	case tier <= 2:
		return basePrice + int64(g.rnd.Intn(2000)+1000)
	default:
		return basePrice + int64(g.rnd.Intn(1000))
	}
}

func (g *TicketTypeGenerator) insert(ctx context.Context, ticketTypes []models.TicketType) error {
	for i := range ticketTypes {
		tt := &ticketTypes[i]
		if err := g.ticketTypes.Create(ctx, tt); err != nil {
			return fmt.Errorf("failed to create ticket type %s: %w", tt.Name, err)
		}
		logger.Get().Info("Created ticket type",
			"id", tt.ID,
			"event_id", tt.EventID,
			"name", tt.Name,
			"price", tt.Price,
			"quantity", tt.TotalQuantity)
	}
	return nil
}
