package config

import (
	"fmt"
	"os"
	"strconv"
)

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

const TIME_PARSE_FORMAT = "2006-01-02 15:04:05 -07:00"

// Currency is fixed; all amounts are integer minor units (cents).
const Currency = "aud"

const MaxGroupSize = 6

const defaultUnitPriceCents = 1800

func UnitPriceCents() int64 {
	v := os.Getenv("UNIT_PRICE_CENTS")
	if v == "" {
		return defaultUnitPriceCents
	}
	price, err := strconv.ParseInt(v, 10, 64)
	if err != nil || price <= 0 {
		return defaultUnitPriceCents
	}
	return price
}

// AdminPlayerName is the roster name used for the seat that is automatically
// taken by the administrator when a game is created.
func AdminPlayerName() string {
	name := os.Getenv("ADMIN_PLAYER_NAME")
	if name == "" {
		name = "Admin"
	}
	return name
}

func AdminEmail() string {
	email := os.Getenv("ADMIN_EMAIL")
	if email == "" {
		email = "admin@easyplay.com"
	}
	return email
}
