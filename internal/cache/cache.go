// Package cache описывает кэш байтовых значений, которым пользуются сервисы.
// Реализация по умолчанию: rediscache.
package cache

import (
	"context"
	"strings"
	"time"
)

type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func ShipmentKey(tracking string) string {
	return "shiptrack:shipment:" + tracking
}

func GeocodeKey(address string) string {
	return "shiptrack:geocode:" + strings.ToLower(strings.Join(strings.Fields(address), " "))
}

func NotifyRateKey(channel, contact string) string {
	return "shiptrack:notify-rate:" + channel + ":" + contact
}
