package main

import (
	"context"
	"errors"

	"github.com/joho/godotenv"
)

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения
	_ = godotenv.Load()

	app := mustBootstrapShipAPI()
	defer app.Close()

	if err := app.Run(); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
