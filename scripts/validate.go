package main

import (
	"flag"
	"os"

	"tixledger/internal/logger"
	"tixledger/internal/validation"
)

func main() {
	var baseURL, token, ticketTypeID string
	flag.StringVar(&baseURL, "url", "http://localhost:8081", "Base URL for API validation")
	flag.StringVar(&token, "token", os.Getenv("VALIDATION_TOKEN"), "Buyer JWT used for purchase endpoints")
	flag.StringVar(&ticketTypeID, "ticket-type", "", "Ticket type with at least one available ticket")
	flag.Parse()

	logger.Init("info", "text")
	logger.Get().Info("Starting API validation", "url", baseURL)

	validator := validation.NewAPIValidator(baseURL, token, ticketTypeID)
	if err := validator.ValidateAll(); err != nil {
		logger.Fatal("❌ Валидация не пройдена", "error", err)
	}

	logger.Get().Info("✅ Валидация успешно пройдена!")
}
